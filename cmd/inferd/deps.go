package main

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"inferd/internal/backend"
	"inferd/internal/hub"
	"inferd/internal/manager"
	"inferd/internal/model"
	"inferd/internal/session"
	"inferd/internal/store"
	"inferd/pkg/types"
)

// buildDeps wires the shared model dependencies from config.
func (a *app) buildDeps() (model.Deps, error) {
	st, err := store.New(a.cfg.CacheDir)
	if err != nil {
		return model.Deps{}, err
	}
	if err := os.MkdirAll(st.Root, 0o755); err != nil {
		return model.Deps{}, fmt.Errorf("create cache root: %w", err)
	}
	client := hub.NewClient(
		hub.WithBaseURL(a.cfg.HubURL),
		hub.WithToken(a.cfg.HubToken),
		hub.WithRevision(a.cfg.HubRevision),
		hub.WithParallelism(a.cfg.FetchParallelism),
		hub.WithLogger(a.log.With().Str("component", "hub").Logger()),
	)
	catalog := backend.NewCatalog(backend.HostProber{}, backend.Settings{
		InterOpThreads: a.cfg.InterOpThreads,
		IntraOpThreads: a.cfg.IntraOpThreads,
		ANN:            a.cfg.ANN,
	}, &a.log)
	builder := session.NewBuilder(session.Options{
		ORTLibraryPath: a.cfg.ORTLibraryPath,
		ANNFP16Turbo:   a.cfg.ANNFP16Turbo,
		Logger:         &a.log,
	})
	return model.Deps{
		Store:     st,
		Fetcher:   client,
		Catalog:   catalog,
		Builder:   builder,
		Namespace: a.cfg.DefaultNamespace,
		Logger:    &a.log,
	}, nil
}

// buildManager wires a manager over deps. reg may be nil for one-shot commands.
func (a *app) buildManager(deps model.Deps, reg prometheus.Registerer, pub manager.EventPublisher) *manager.Manager {
	return manager.NewWithConfig(manager.ManagerConfig{
		Deps: deps,
		Params: map[types.Family]model.Params{
			types.FamilyImageClassification: {"minScore": a.cfg.MinScore},
		},
		MaxQueueDepth:   a.cfg.MaxQueueDepth,
		MaxWait:         time.Duration(a.cfg.MaxWaitMS) * time.Millisecond,
		MaxLoadedModels: a.cfg.MaxLoadedModels,
		Publisher:       pub,
		Metrics:         manager.NewMetrics(reg),
		Logger:          &a.log,
	})
}
