package routing

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ErrImmutableParameter is the cause wrapped by a HookError when a hook
// returned a replacement bundle that differs in an identity field.
var ErrImmutableParameter = errors.New("attempt to change immutable parameter")

// Rule is one static routing rule: a source path prefix mapped to a target
// URL template, with an ordered chain of hooks to run before substitution.
// Rules are constructed once from configuration and hold no per-request
// state; the same rule may serve many resolutions concurrently.
type Rule struct {
	sourcePrefix string
	target       string
	hooks        []Hook
}

// NewRule creates a rule. The source prefix is canonicalized to exactly one
// leading and one trailing slash. The hook chain may be empty, meaning the
// rule has no side effects.
func NewRule(sourcePrefix, target string, hooks ...Hook) *Rule {
	return &Rule{
		sourcePrefix: CanonicalPrefix(sourcePrefix),
		target:       target,
		hooks:        hooks,
	}
}

// CanonicalPrefix forces a source prefix to have one leading and one
// trailing slash.
func CanonicalPrefix(prefix string) string {
	return "/" + strings.Trim(prefix, "/") + "/"
}

// SourcePrefix returns the canonical source prefix of the rule.
func (r *Rule) SourcePrefix() string { return r.sourcePrefix }

// Target returns the target template of the rule.
func (r *Rule) Target() string { return r.target }

// matches reports whether the path, which carries no leading slash, starts
// with the rule's source prefix.
func (r *Rule) matches(path string) bool {
	return strings.HasPrefix(path, r.sourcePrefix[1:])
}

// Resolve runs the rule against the bundle and returns the redirect target.
// The caller's bundle is never modified; hooks operate on a private copy.
//
// Resolution has two phases. First the hook chain runs, strictly in order,
// each hook awaited before the next starts. Second, the possibly updated
// target template is substituted with the request values and validated as
// an absolute URL. A failing hook or contract violation yields a HookError,
// a bad template or malformed result a ResolutionError.
func (r *Rule) Resolve(ctx context.Context, bundle *Bundle) (string, error) {
	if !r.matches(bundle.Path) {
		return "", &MatchNotFoundError{Path: bundle.Path, Prefixes: []string{r.sourcePrefix}}
	}

	b, err := r.runHooks(ctx, bundle.Clone())
	if err != nil {
		return "", err
	}
	return r.substitute(b)
}

// runHooks executes the hook chain. The working target is threaded through
// the bundle: before each hook runs, the bundle's Target is set to the
// current working target, and a replacement bundle with a different target
// updates it. A replacement with Final set ends the chain early.
func (r *Rule) runHooks(ctx context.Context, b *Bundle) (*Bundle, error) {
	current := r.target
	b.Target = current
	for _, hook := range r.hooks {
		b.Target = current
		log.Debugf("running hook '%s' with %s", hook.Name(), b)
		res, err := hook.Run(ctx, b)
		if err != nil {
			return nil, &HookError{Hook: hook.Name(), Bundle: b, Err: err}
		}
		next, ok := res.Replacement()
		if !ok {
			continue
		}
		if fields := changedImmutable(b, next); len(fields) > 0 {
			return nil, &HookError{
				Hook:   hook.Name(),
				Bundle: b,
				Fields: fields,
				Err:    ErrImmutableParameter,
			}
		}
		if next.Target == "" {
			next.Target = current
		}
		if next.Final {
			return next, nil
		}
		if next.Target != current {
			current = next.Target
		}
		b = next
	}
	return b, nil
}

// substitute builds the substitution mapping from the final bundle, applies
// it to the working target template and validates the result.
func (r *Rule) substitute(b *Bundle) (string, error) {
	path := b.Path
	if b.Strip {
		// The source prefix carries a leading slash, the path does not.
		path = b.Path[len(r.sourcePrefix)-1:]
	}
	mapping := map[string]string{
		"base_url":  strings.TrimSuffix(b.BaseURL, "/"),
		"user":      b.User,
		"path":      path,
		"target":    b.Target,
		"unique_id": b.UniqueID,
	}

	log.Debugf("rewriting '%s' with %v", b.Target, mapping)
	result, err := NewTemplate(b.Target).Substitute(mapping)
	if err != nil {
		return "", &ResolutionError{Target: b.Target, Bundle: b, Err: err}
	}
	canonical, err := canonicalURL(result)
	if err != nil {
		return "", &ResolutionError{Target: b.Target, Bundle: b, Err: err}
	}
	log.Debugf("rewritten target: '%s'", canonical)
	return canonical, nil
}

// canonicalURL validates that the substituted string is an absolute http(s)
// URL and returns its canonical form.
func canonicalURL(s string) (string, error) {
	if strings.ContainsAny(s, " \t\r\n") {
		return "", fmt.Errorf("whitespace in URL %q", s)
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return "", fmt.Errorf("not an absolute URL: %q", s)
	}
	return u.String(), nil
}
