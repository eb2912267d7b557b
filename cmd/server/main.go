package main

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/prepdash/battle-backend/internal/archive"
	"github.com/prepdash/battle-backend/internal/battle"
	"github.com/prepdash/battle-backend/internal/config"
	"github.com/prepdash/battle-backend/internal/executor"
	"github.com/prepdash/battle-backend/internal/httpapi"
	"github.com/prepdash/battle-backend/internal/identity"
	"github.com/prepdash/battle-backend/internal/judge"
	"github.com/prepdash/battle-backend/internal/problem"
	"github.com/prepdash/battle-backend/internal/registry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	var log *zap.Logger
	if cfg.Env == "dev" {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	exec := executor.New(executor.Config{
		Workers:        int64(cfg.ExecWorkers),
		MaxCodeBytes:   cfg.MaxCodeBytes,
		MaxInputBytes:  cfg.MaxInputBytes,
		MaxOutputBytes: cfg.MaxOutputBytes,
		CompileTimeout: cfg.CompileTimeout,
	}, nil, log)

	var archiver battle.Archiver
	if cfg.DatabaseURL != "" {
		store, err := archive.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatal("open archive", zap.Error(err))
		}
		archiver = store
		log.Info("battle archive enabled")
	}

	reg := registry.New(context.Background(), registry.Config{
		Retention:     cfg.Retention,
		SweepInterval: cfg.SweepInterval,
		EvalTimeout:   cfg.EvalTimeout,
	}, registry.Deps{
		Problems:  problem.Seed(),
		Evaluator: judge.New(exec, judge.Options{}),
		Archiver:  archiver,
		Logger:    log,
	})
	defer reg.Close()

	handler := httpapi.SetupRoutes(&httpapi.API{
		Registry: reg,
		Identity: identity.TrustingResolver{},
		Log:      log,
	})

	log.Info("listening", zap.String("addr", cfg.Addr))
	if err := http.ListenAndServe(cfg.Addr, handler); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
