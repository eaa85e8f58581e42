// Package extension mounts recur into a host HTTP application.
//
// The extension:
//   - Migrates the configured store on registration
//   - Builds the recur instance from a YAML-friendly Config
//   - Mounts the admin API under a configurable prefix
//   - Provides health checks via store.Ping
//
// Usage:
//
//	ext := extension.New(
//	    extension.WithStore(pgxstore.New(pool)),
//	    extension.WithBasePath("/recur"),
//	)
//	if err := ext.Register(ctx); err != nil {
//	    return err
//	}
//	mux.Handle("/recur/", ext.Handler())
package extension
