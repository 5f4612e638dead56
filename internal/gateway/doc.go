// Package gateway serves the two proxied route families and ties the
// request pipeline together.
//
// Requests under /api/orchestrator forward the caller's own credential, as
// chosen by the credential policy. Requests under /api/agent are
// service-to-service calls: the caller is authenticated, then the gateway
// attaches its own service credential and the verified tenant id.
//
// A Handler is built per configuration snapshot. Reload builds a fresh
// Handler and router and installs them on the running Server with
// SetHandler:
//
//	h, err := gateway.NewHandler(gateway.HandlerConfig{...})
//	if err != nil {
//	    return err
//	}
//	srv.SetHandler(gateway.NewRouter(gateway.RouterConfig{Handler: h}))
package gateway
