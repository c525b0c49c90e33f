package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"

	"github.com/aretw0/labflow"
	"github.com/aretw0/labflow/internal/logging"
	"github.com/aretw0/labflow/pkg/action"
	"github.com/aretw0/labflow/pkg/adapters/file"
	"github.com/aretw0/labflow/pkg/adapters/memory"
	"github.com/aretw0/labflow/pkg/adapters/redis"
	"github.com/aretw0/labflow/pkg/adapters/sqlstore"
	"github.com/aretw0/labflow/pkg/domain"
	"github.com/aretw0/labflow/pkg/lims"
	"github.com/aretw0/labflow/pkg/persistence/middleware"
	"github.com/aretw0/labflow/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// config is the resolved CLI configuration.
type config struct {
	Store     string
	RedisAddr string
	SQLDSN    string
	FileDir   string
	LogLevel  string
	Fixture   string
	Actor     string
	// Redact lists regular expressions masked in audit comments.
	Redact []string
	// EncryptionKey is a base64 AES-256 key sealing audit comments at rest.
	EncryptionKey string
	// HistoryReaders may read audit trails through the servers. Empty means everyone.
	HistoryReaders []string
}

func loadConfig() config {
	return config{
		Store:         viper.GetString("store"),
		RedisAddr:     viper.GetString("redis.addr"),
		SQLDSN:        viper.GetString("sql.dsn"),
		FileDir:       viper.GetString("file.dir"),
		LogLevel:      viper.GetString("log.level"),
		Fixture:       viper.GetString("fixture"),
		Actor:         viper.GetString("actor"),
		Redact:        viper.GetStringSlice("redact"),
		EncryptionKey:  viper.GetString("encryption.key"),
		HistoryReaders: viper.GetStringSlice("history.readers"),
	}
}

func (c config) logger() (*slog.Logger, error) {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	return logging.New(level), nil
}

func (c config) fixture() (*lims.Fixture, error) {
	if c.Fixture == "" {
		return lims.DemoFixture(), nil
	}
	return lims.LoadFixture(c.Fixture)
}

// backendSet is the store plus what must be closed with it.
type backendSet struct {
	store  ports.StateStore
	locker ports.DistributedLocker
	close  func() error
}

func (c config) openBackend(ctx context.Context) (*backendSet, error) {
	switch c.Store {
	case "", "memory":
		return &backendSet{store: memory.NewStore(), close: func() error { return nil }}, nil
	case "file":
		return &backendSet{store: file.New(c.FileDir), close: func() error { return nil }}, nil
	case "redis":
		client := backend.NewClient(&backend.Options{Addr: c.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis %s: %w", c.RedisAddr, err)
		}
		return &backendSet{
			store:  redis.NewFromClient(client),
			locker: redis.NewLocker(client, ""),
			close:  client.Close,
		}, nil
	case "sqlite", "postgres":
		driver, dsn := "sqlite", c.SQLDSN
		if c.Store == "postgres" {
			driver = "pgx"
		} else if dsn == "" {
			dsn = "labflow.db"
		}
		if dsn == "" {
			return nil, errors.New("--sql-dsn is required for --store=postgres")
		}
		s, err := sqlstore.Open(ctx, driver, dsn)
		if err != nil {
			return nil, err
		}
		return &backendSet{store: s, close: s.Close}, nil
	}
	return nil, fmt.Errorf("unknown store %q", c.Store)
}

func (c config) middleware() ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if c.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(c.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("encryption.key: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("encryption.key: want 32 bytes, got %d", len(key))
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))
	}
	if len(c.Redact) > 0 {
		for _, p := range c.Redact {
			if _, err := regexp.Compile(p); err != nil {
				return nil, fmt.Errorf("redact pattern %q: %w", p, err)
			}
		}
		// Redaction runs before encryption seals the comment.
		mws = append([]middleware.Middleware{middleware.Redact(c.Redact)}, mws...)
	}
	return mws, nil
}

// permissions grants everything but lims.PermViewHistory, which is kept to
// HistoryReaders when any are configured.
func (c config) permissions() ports.PermissionChecker {
	if len(c.HistoryReaders) == 0 {
		return ports.AllowAll
	}
	readers := slices.Clone(c.HistoryReaders)
	return ports.PermissionFunc(func(_ context.Context, p domain.Permission, actor string, _ domain.Entity) bool {
		return p != lims.PermViewHistory || slices.Contains(readers, actor)
	})
}

// session is an opened lab with everything the commands need.
type session struct {
	cfg    config
	engine *labflow.Engine
	lab    *lims.Lab
	runner *action.Runner
	logger *slog.Logger
	// audit serves history reads of the servers. The engine reads the store
	// directly so that guards always see the full trail.
	audit ports.StateStore
	close func() error
}

// openSession opens the configured store and the lab of the configured fixture.
func openSession(ctx context.Context, extra ...labflow.Option) (*session, error) {
	cfg := loadConfig()
	logger, err := cfg.logger()
	if err != nil {
		return nil, err
	}
	fx, err := cfg.fixture()
	if err != nil {
		return nil, err
	}
	mws, err := cfg.middleware()
	if err != nil {
		return nil, err
	}
	be, err := cfg.openBackend(ctx)
	if err != nil {
		return nil, err
	}

	checker := cfg.permissions()
	opts := append([]labflow.Option{
		labflow.WithPermissionChecker(checker),
		labflow.WithStore(be.store),
		labflow.WithStoreMiddleware(mws...),
		labflow.WithLogger(logger),
		labflow.WithName("labflow-cli"),
	}, extra...)
	engine, lab, err := labflow.OpenLab(ctx, fx, opts...)
	if err != nil {
		_ = be.close()
		return nil, err
	}

	runnerOpts := []action.Option{action.WithLogger(logger)}
	if be.locker != nil {
		runnerOpts = append(runnerOpts, action.WithLocker(be.locker))
	}
	audit := middleware.HistoryPrivilege(checker, lims.PermViewHistory,
		middleware.WithResolver(lab),
		middleware.WithLogger(logger),
	)(engine.Store())
	return &session{
		cfg:    cfg,
		engine: engine,
		lab:    lab,
		runner: action.NewRunner(runnerOpts...),
		logger: logger,
		audit:  audit,
		close:  be.close,
	}, nil
}
