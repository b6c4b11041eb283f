// Package api exposes the broker to the web layer over HTTP. Routes are
// tenant scoped; the caller's session token, when present, is the bearer
// token of the incoming request.
package api
