// Package client talks to the remote authentication service over HTTP/JSON.
//
// Every request is signed with the tenant headers X-Tenant-Key and
// X-Tenant-Sign and, when a TokenSource yields one, a bearer token. Non-200
// responses are mapped to Go errors:
//
//   - 422 -> *ValidationError with per-field messages
//   - 401 -> ErrUnauthorized
//   - any other status -> *HTTPError
//
// The bulk Sync request gets its own, generous timeout. All other requests
// share RequestTimeout.
package client
