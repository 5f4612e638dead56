// Package auth implements the tenant guard.
//
// The guard verifies the bearer token chosen by the credential policy and
// reads the tenant from the verified claims only. Tenant ids that callers
// put in bodies or query strings are ignored; they are at most logged.
//
// Failures are AuthErrors. They render as auth_error with status 401, or 403
// for a tenant mismatch, and end the request.
package auth
