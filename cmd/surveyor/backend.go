package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dlovans/surveyor/pkg/catalog"
	"github.com/dlovans/surveyor/pkg/config"
	"github.com/dlovans/surveyor/pkg/store/memstore"
	"github.com/dlovans/surveyor/pkg/store/pgstore"
	"github.com/dlovans/surveyor/pkg/submit"
	"github.com/dlovans/surveyor/pkg/survey"
)

// backend is the catalog, answer store and engine selected by config and flags.
type backend struct {
	cfg        config.Config
	logger     *slog.Logger
	catalog    survey.Catalog
	store      survey.AnswerStore
	pg         *pgstore.Store
	engine     *survey.Engine
	registry   *prometheus.Registry
	metrics    *submit.Metrics
	server     *http.Server
	respondent int64
	version    int64
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return cfg, err
	}
	if flagCatalog != "" {
		cfg.CatalogPath = flagCatalog
	}
	if flagDSN != "" {
		cfg.DSN = flagDSN
	}
	return cfg, nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.LoadFile(path)
}

func openBackend(ctx context.Context) (*backend, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	b := &backend{
		cfg:        cfg,
		logger:     cfg.Logger(os.Stderr),
		registry:   prometheus.NewRegistry(),
		respondent: flagRespondent,
		version:    flagVersion,
	}
	b.metrics = submit.NewMetrics(b.registry)

	if cfg.DSN != "" {
		pg, err := pgstore.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		b.pg, b.catalog, b.store = pg, pg, pg
	} else {
		local, err := loadCatalog(cfg.CatalogPath)
		if err != nil {
			return nil, err
		}
		mem := memstore.New()
		if flagAnswers != "" {
			f, err := os.Open(flagAnswers)
			if err != nil {
				return nil, fmt.Errorf("open answers: %w", err)
			}
			answers, fx, err := memstore.LoadFixture(ctx, f, local)
			f.Close()
			if err != nil {
				return nil, err
			}
			mem.Load(answers)
			if b.respondent == 0 {
				b.respondent = fx.RespondentID
			}
			if b.version == 0 {
				b.version = fx.VersionID
			}
		}
		b.catalog, b.store = local, mem
	}
	if b.version == 0 {
		b.version = 1
	}

	b.engine = survey.NewEngine(b.catalog, b.store,
		survey.WithSnapshotPolicy(cfg.Policy()),
		survey.WithLogger(b.logger),
	)
	b.serveMetrics()
	b.logger.Debug("backend ready",
		"postgres", b.pg != nil,
		"respondent_id", b.respondent,
		"version_id", b.version,
		"snapshot_policy", cfg.Policy().String(),
	)
	return b, nil
}

// serveMetrics exposes the registry on cfg.MetricsAddr for the lifetime of the command.
func (b *backend) serveMetrics() {
	if b.cfg.MetricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(b.registry, promhttp.HandlerOpts{}))
	b.server = &http.Server{
		Addr:              b.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := b.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.logger.Error("metrics server failed", "addr", b.cfg.MetricsAddr, "error", err)
		}
	}()
	b.logger.Info("serving metrics", "addr", b.cfg.MetricsAddr)
}

func (b *backend) Close() {
	if b.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		b.server.Shutdown(ctx)
		cancel()
	}
	if b.pg != nil {
		b.pg.Close()
	}
}

func (b *backend) questionID(ctx context.Context, number string) (int64, error) {
	q, err := b.catalog.QuestionByNumber(ctx, b.version, number)
	if err != nil {
		return 0, err
	}
	return q.ID, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRejection(r *survey.Rejection) {
	fmt.Printf("✗ %s", r.Kind)
	if r.Number != "" {
		fmt.Printf(" [question: %s]", r.Number)
	}
	if r.Rule != "" {
		fmt.Printf(" [rule: %s]", r.Rule)
	}
	fmt.Printf(": %s\n", r.Message)
}
