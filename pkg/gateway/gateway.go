// Package gateway selects the persistence adapter at startup and exposes it
// behind the single statement contract.
package gateway

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/yeoleshweta/PocketSaver/pkg/config"
	"github.com/yeoleshweta/PocketSaver/pkg/connection"
	"github.com/yeoleshweta/PocketSaver/pkg/memstore"
	"github.com/yeoleshweta/PocketSaver/pkg/native"
	"github.com/yeoleshweta/PocketSaver/pkg/query"
	"github.com/yeoleshweta/PocketSaver/pkg/remote"
	"github.com/yeoleshweta/PocketSaver/pkg/schema"
	"github.com/yeoleshweta/PocketSaver/pkg/tablestore"
)

// Executor runs one parameterized statement and returns its rows. Every
// adapter implements it with the same observable behavior for the supported
// dialect.
type Executor interface {
	Execute(ctx context.Context, text string, params ...query.Value) (query.RowSet, error)
}

var (
	_ Executor = (*memstore.Adapter)(nil)
	_ Executor = (*native.Adapter)(nil)
	_ Executor = (*remote.Adapter)(nil)
)

// Gateway is the adapter chosen by configuration, wrapped with logging.
type Gateway struct {
	Executor
	adapter string
	closeFn func() error
}

// New builds the adapter named by cfg.Adapter. An unknown name is an error.
func New(ctx context.Context, cfg config.Config, log *logrus.Logger) (*Gateway, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	var (
		exec    Executor
		closeFn = func() error { return nil }
	)
	switch cfg.Adapter {
	case config.AdapterMemory:
		exec = memstore.NewAdapter(memstore.NewStore(schema.Tables()), memstore.WithLatency(cfg.Memory.Latency))

	case config.AdapterNative:
		conn, err := connection.Open(ctx, cfg.Native.Driver, cfg.Native.DSN)
		if err != nil {
			return nil, err
		}
		a := native.NewAdapter(conn, native.DialectFor(cfg.Native.Driver))
		if cfg.Native.Bootstrap {
			if err := a.Bootstrap(ctx); err != nil {
				_ = a.Close()
				return nil, fmt.Errorf("failed to bootstrap tables: %w", err)
			}
		}
		exec, closeFn = a, a.Close

	case config.AdapterRemote:
		client, err := tablestore.NewClient(tablestore.Config{
			BaseURL: cfg.Remote.URL,
			APIKey:  cfg.Remote.APIKey,
			Timeout: cfg.Remote.Timeout,
			Logger:  log,
		})
		if err != nil {
			return nil, err
		}
		exec = remote.NewAdapter(client, remote.NewBuilder(nil))

	default:
		return nil, fmt.Errorf("unknown adapter %q", cfg.Adapter)
	}

	entry := log.WithField("adapter", cfg.Adapter)
	entry.Info("persistence adapter ready")
	return &Gateway{
		Executor: WithLogging(exec, entry),
		adapter:  cfg.Adapter,
		closeFn:  closeFn,
	}, nil
}

// Adapter returns the configured adapter name.
func (g *Gateway) Adapter() string {
	return g.adapter
}

// Close releases the adapter's resources.
func (g *Gateway) Close() error {
	return g.closeFn()
}
