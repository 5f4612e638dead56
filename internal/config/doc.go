// Package config provides the configuration model and loading for tenantgw.
//
// A configuration snapshot is assembled in three steps:
//
//   - the optional YAML file is read with ${VAR} and ${VAR:-default}
//     substitution
//   - the process environment is overlaid (backend URLs, deployment mode,
//     service credentials, JWT verification settings)
//   - defaults are applied and the result is validated
//
// The resulting *GatewayConfig is never mutated afterwards. Reloads build a
// new snapshot through the same path:
//
//	cfg, err := config.Build(path, os.LookupEnv)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	watcher, err := config.NewWatcher(path, os.LookupEnv, func(next *config.GatewayConfig) {
//	    // swap handlers
//	})
package config
