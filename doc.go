/*
Package usher implements a request-time URL redirect resolver for a
multi-tenant notebook-computing platform. An inbound path is matched
against an ordered table of prefix rules; the matching rule runs its
preparation hooks for the requesting user (ensuring a backing lab exists,
fetching content into it) and substitutes request- and hook-derived values
into its target template, yielding the absolute URL the user is redirected
to.

The resolution engine lives in the routing package, the builtin hooks in
hooks, the per-user platform capability in session, and the configuration
surface in config. This package wires them into an HTTP service; see the
cmd/usher command for the executable.
*/
package usher
