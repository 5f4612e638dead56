// Package proxy executes upstream calls on behalf of the gateway.
//
// It owns three things:
//
//   - ForwardedHeaders, the only way credentials reach an upstream request.
//     A header set has one of two shapes (user forwarding or service
//     identity) and refuses headers outside its shape.
//   - Forwarder, which performs the call with a timeout and a per-target
//     circuit breaker, and classifies every failure as one ErrorKind.
//   - WriteResponse and WriteError, which render the outcome for the
//     original caller.
//
// The forwarder never retries. A request is sent upstream at most once.
package proxy
