/*
Package routing implements the redirect resolution engine: an ordered table
of prefix rules, each mapping a source path prefix to a target URL template
and an ordered chain of hooks.

Resolving a request happens in two phases. First the table selects the rule
with the longest matching source prefix and runs its hook chain, one hook at
a time, threading a per-request Bundle through it. A hook may leave the
bundle unchanged or replace it, but only the staging fields (Target,
UniqueID, Strip, Final) may differ from its input; a change to any other
field fails the resolution. Second, the engine substitutes the request
values into the resulting target template and validates that the outcome is
an absolute URL.

Rules and tables are immutable after construction and safe for concurrent
use. All per-request state lives in the Bundle.
*/
package routing
