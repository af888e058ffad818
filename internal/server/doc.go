// Package server hosts the Fiber HTTP gateway that exposes the cached page
// fetcher to local tools. It attaches recover and request-id middlewares and
// serves the prometheus exposition on /metrics. Diagnostics routes under /-/
// live in the routes subpackage and accept explicit dependencies.
package server
