/*
Package session provides the per-user notebook-platform capability that
hooks act through: authenticating to the hub and the lab, checking and
awaiting lab readiness, opening an execution session in the lab kernel, and
performing HTTP calls with the user's delegated credentials.

The resolution engine never looks inside this capability; it travels
opaquely in the bundle. The Manager caches one client per delegated token
and guarantees at most one construction per token under concurrent use.
*/
package session
