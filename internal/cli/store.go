package cli

import (
	"context"

	"github.com/xraph/recur/store"
	"github.com/xraph/recur/store/memory"
	"github.com/xraph/recur/store/pgxstore"
)

// openStore connects the backend selected by cfg.
func openStore(ctx context.Context, cfg StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case DriverPostgres:
		return pgxstore.Open(ctx, cfg.DSN)
	default:
		return memory.New(), nil
	}
}
