// Package clientip extracts the client address of an HTTP request, looking at
// proxy headers first and RemoteAddr last, and keeps it in the request
// context for rate limiting of anonymous traffic and for logs.
package clientip
