package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/relief-ops/checklist-cli/internal/pipeline"
	"github.com/relief-ops/checklist-cli/internal/roles"
	"github.com/relief-ops/checklist-cli/internal/store"
	"github.com/relief-ops/checklist-cli/pkg/backend"
)

// env bundles the wired pipeline and its store so commands can tear both
// down together.
type env struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

func (e *env) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// useStub switches the extraction backend to the offline keyword stub.
// Set by the run command's --stub flag; serve always uses the real backend.
var useStub bool

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "checklist.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initBackend() (backend.Client, error) {
	if useStub {
		zap.L().Warn("using offline stub backend; extraction quality is keyword-grade")
		return &backend.StubClient{}, nil
	}
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic key is required (CHECKLIST_ANTHROPIC_KEY)")
	}
	return backend.NewClient(cfg.Anthropic.Key,
		backend.WithModel(cfg.Anthropic.Model),
		backend.WithMaxTokens(cfg.Anthropic.MaxTokens),
		backend.WithTimeout(time.Duration(cfg.Anthropic.TimeoutSecs)*time.Second),
		backend.WithRateLimit(cfg.Anthropic.RequestsPerSec),
	), nil
}

func initResolver() (*roles.Resolver, error) {
	if cfg.Roles.TaxonomyPath == "" {
		zap.L().Info("no role taxonomy configured; all roles render as needing assignment")
		return nil, nil
	}
	tax, err := roles.Load(cfg.Roles.TaxonomyPath)
	if err != nil {
		return nil, err
	}
	zap.L().Info("role taxonomy loaded",
		zap.String("path", cfg.Roles.TaxonomyPath),
		zap.Int("roles", len(tax.Roles)),
	)
	return roles.NewResolver(tax, cfg.Roles.FuzzyThreshold), nil
}

func initPipeline(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	client, err := initBackend()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	resolver, err := initResolver()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &env{
		Store:    st,
		Pipeline: pipeline.New(cfg, st, client, resolver),
	}, nil
}
