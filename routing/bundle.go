package routing

import (
	"fmt"
	"reflect"
	"strings"
)

// Bundle carries the state of one resolution. The identity fields (User,
// BaseURL, Path, Token, Client) are fixed for the lifetime of the
// resolution; the remaining fields are staging values owned by the hook
// chain. Hooks receive the bundle and may return a replacement, but a
// replacement that differs in any identity field fails the resolution.
type Bundle struct {
	// User is the requesting user's name.
	User string

	// BaseURL is the absolute base URL of the platform environment.
	BaseURL string

	// Path is the request path with the leading slash removed.
	Path string

	// Token is the delegated credential of the requesting user. It is
	// never exposed to template substitution and never logged in full.
	Token string

	// Client is the opaque session capability for the requesting user.
	// The engine passes it through to hooks unexamined.
	Client any

	// Target is the working target template. It is seeded from the
	// matched rule and may be replaced by hooks.
	Target string

	// UniqueID is an optional discriminator substituted for ${unique_id}.
	UniqueID string

	// Strip controls whether the matched source prefix is removed from
	// Path before substitution.
	Strip bool

	// Final short-circuits the hook chain: when a replacement bundle
	// carries Final, no further hooks run.
	Final bool
}

// NewBundle returns a bundle for one resolution. Strip defaults to true:
// unless a hook decides otherwise, the matched prefix is removed from the
// path before substitution.
func NewBundle(user, baseURL, path, token string, client any) *Bundle {
	return &Bundle{
		User:    user,
		BaseURL: baseURL,
		Path:    strings.TrimPrefix(path, "/"),
		Token:   token,
		Client:  client,
		Strip:   true,
	}
}

// Clone returns a copy of the bundle. Hooks that want to replace the bundle
// should clone their input and modify the staging fields of the copy.
func (b *Bundle) Clone() *Bundle {
	c := *b
	return &c
}

// immutable lists the fields a hook may not change, in reporting order.
var immutable = []string{"user", "base_url", "path", "token", "client"}

// changedImmutable compares the identity fields of a replacement bundle
// against its input and returns the names of the fields that differ.
func changedImmutable(in, out *Bundle) []string {
	var fields []string
	for _, name := range immutable {
		var same bool
		switch name {
		case "user":
			same = in.User == out.User
		case "base_url":
			same = in.BaseURL == out.BaseURL
		case "path":
			same = in.Path == out.Path
		case "token":
			same = in.Token == out.Token
		case "client":
			same = sameClient(in.Client, out.Client)
		}
		if !same {
			fields = append(fields, name)
		}
	}
	return fields
}

// sameClient reports whether two opaque client values are the same
// capability. The dynamic type is not assumed to be comparable, so an
// interface comparison that could panic is avoided: reference kinds compare
// by identity, everything else by value.
func sameClient(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)
	if av.Type() != bv.Type() {
		return false
	}
	switch av.Kind() {
	case reflect.Pointer, reflect.Chan, reflect.Map, reflect.Func, reflect.UnsafePointer:
		return av.Pointer() == bv.Pointer()
	}
	if av.Comparable() {
		return av.Equal(bv)
	}
	return reflect.DeepEqual(a, b)
}

// String renders the bundle for logging. The token is redacted.
func (b *Bundle) String() string {
	return fmt.Sprintf(
		"Bundle{user: %q, base_url: %q, path: %q, token: %q, target: %q, unique_id: %q, strip: %t, final: %t}",
		b.User, b.BaseURL, b.Path, redactToken(b.Token),
		b.Target, b.UniqueID, b.Strip, b.Final,
	)
}

func redactToken(token string) string {
	if len(token) <= 4 {
		return "<redacted>"
	}
	return token[:4] + "..."
}
