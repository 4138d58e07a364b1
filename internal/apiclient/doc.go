// Package apiclient is the resilient HTTP client used for every backend call.
//
// A request passes through request interceptors, an optional GET cache,
// per-attempt timeouts, and an exponential retry loop before the body is parsed
// by content type. Failures surface as *Error values classified by Kind so
// workflows can branch with errors.Is on the exported sentinels. Error
// interceptors observe each terminal failure exactly once per call, which is
// where a 401 clears the stored credential and broadcasts logout.
package apiclient
