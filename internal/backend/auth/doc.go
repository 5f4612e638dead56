// Package auth builds the service identity the gateway presents when it
// calls internal backends on behalf of an authenticated user.
//
// The credential comes from an ordered list of CredentialProviders; the
// first tier that has one wins. The default chain is INTERNAL_API_KEY from
// the environment, the same key from Vault, then the legacy
// MEMORY_API_SECRET sent as a bearer token.
package auth
