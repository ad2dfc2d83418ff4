package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"vidtube/cmd/account"
)

// Backend names reported in logs and readiness.
const (
	backendMemory   = "memory"
	backendPostgres = "postgres"
	backendMongo    = "mongo"
)

// directory is the opened account directory plus whatever owns its connections.
type directory struct {
	account.Directory
	backend string
	closeFn func(ctx context.Context) error
}

func (d directory) Close(ctx context.Context) error {
	if d.closeFn == nil {
		return nil
	}
	return d.closeFn(ctx)
}

// backendFor maps a database URL scheme to a backend name.
func backendFor(rawURL string) (string, error) {
	u := strings.ToLower(strings.TrimSpace(rawURL))
	switch {
	case u == "":
		return backendMemory, nil
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		return backendPostgres, nil
	case strings.HasPrefix(u, "mongodb://"), strings.HasPrefix(u, "mongodb+srv://"):
		return backendMongo, nil
	default:
		return "", fmt.Errorf("unsupported VIDTUBE_DATABASE_URL scheme")
	}
}

// openDirectory opens the account directory selected by cfg.DatabaseURL.
// The returned directory owns the pool or client; its Close releases them.
func openDirectory(ctx context.Context, cfg Config, log Logger) (directory, error) {
	backend, err := backendFor(cfg.DatabaseURL)
	if err != nil {
		return directory{}, err
	}

	var d directory
	switch backend {
	case backendMemory:
		log.Info("db.disabled.memory_store")
		d = directory{Directory: account.NewMemoryStore(), backend: backend}

	case backendPostgres:
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return directory{}, err
		}
		if cfg.DBMigrate {
			if err := account.Migrate(ctx, pool); err != nil {
				pool.Close()
				return directory{}, fmt.Errorf("migrate: %w", err)
			}
			log.Info("db.migrate.ok")
		}
		st, err := account.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return directory{}, err
		}
		log.Info("db.enabled.postgres_store")
		d = directory{
			Directory: st,
			backend:   backend,
			closeFn: func(context.Context) error {
				pool.Close()
				return nil
			},
		}

	case backendMongo:
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.DatabaseURL))
		if err != nil {
			return directory{}, err
		}
		st, err := account.NewMongoStore(ctx, client.Database(cfg.DBName))
		if err != nil {
			_ = client.Disconnect(context.Background())
			return directory{}, err
		}
		if err := pingDirectory(ctx, st, 3*time.Second); err != nil {
			_ = client.Disconnect(context.Background())
			return directory{}, err
		}
		log.Info("db.enabled.mongo_store", "db", cfg.DBName)
		d = directory{Directory: st, backend: backend, closeFn: client.Disconnect}
	}

	if cfg.StoreTimeout > 0 {
		d.Directory = account.WithTimeout(d.Directory, cfg.StoreTimeout)
	}
	return d, nil
}

// NewDBPool builds a pgxpool from cfg and validates connectivity.
func NewDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns >= 0 {
		pcfg.MinConns = cfg.DBMinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	if err := PingDB(ctx, pool, 3*time.Second); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// PingDB checks if we can acquire a connection within timeout.
func PingDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	conn.Release()
	return nil
}

func pingDirectory(parent context.Context, dir account.Directory, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	return dir.Ping(ctx)
}

// OpenDirectory opens the directory selected by cfg for tools that run outside
// the server. Closing it releases the underlying pool or client.
func OpenDirectory(ctx context.Context, cfg Config, log Logger) (account.Directory, error) {
	d, err := openDirectory(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if d.backend == backendMemory {
		log.Warn("db.memory_store.ephemeral", "hint", "set VIDTUBE_DATABASE_URL to persist data")
	}
	return d, nil
}
