package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/couchcryptid/fimserve-service/internal/adapter/gcs"
	"github.com/couchcryptid/fimserve-service/internal/adapter/geoglows"
	kafkaadapter "github.com/couchcryptid/fimserve-service/internal/adapter/kafka"
	"github.com/couchcryptid/fimserve-service/internal/adapter/s3"
	"github.com/couchcryptid/fimserve-service/internal/adapter/usgs"
	"github.com/couchcryptid/fimserve-service/internal/command"
	"github.com/couchcryptid/fimserve-service/internal/config"
	"github.com/couchcryptid/fimserve-service/internal/fim"
	"github.com/couchcryptid/fimserve-service/internal/hand"
	"github.com/couchcryptid/fimserve-service/internal/inundation"
	"github.com/couchcryptid/fimserve-service/internal/observability"
	"github.com/couchcryptid/fimserve-service/internal/streamflow"
	"github.com/couchcryptid/fimserve-service/internal/workspace"
	"github.com/jonboulle/clockwork"
)

// app holds the collaborators shared by every subcommand.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock
	layout  workspace.Layout

	catalogStore *s3.Store
	handStore    *s3.Store
	retroStore   *s3.Store

	downloader    *hand.Downloader
	retrospective *streamflow.Retrospective
	runner        *inundation.Runner
	catalog       *fim.ObjectCatalog
	ensurer       *fim.Ensurer
	service       *fim.Service

	events *kafkaadapter.Writer
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := observability.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()
	layout := workspace.Layout{Root: cfg.WorkDir, OutputRoot: cfg.OWPOutRoot}

	client, err := s3.NewClient(ctx, cfg.AWSRegion, cfg.S3Endpoint)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:          cfg,
		logger:       logger,
		metrics:      metrics,
		clock:        clock,
		layout:       layout,
		catalogStore: s3.NewStore(client, cfg.CatalogBucket, cfg.Workers, metrics, logger),
		handStore:    s3.NewStore(client, cfg.HANDBucket, cfg.Workers, metrics, logger),
		retroStore:   s3.NewStore(client, cfg.NWMRetroBucket, cfg.Workers, metrics, logger),
	}

	a.downloader = hand.NewDownloader(layout, a.handStore, command.Exec{}, cfg.InundationRepoURL, logger)
	a.retrospective = streamflow.NewRetrospective(layout, a.retroStore, cfg.Workers, metrics, logger)
	a.runner = inundation.NewRunner(layout, command.Exec{}, cfg.PythonBin, metrics, logger)

	// sink stays a nil interface when publishing is disabled.
	var sink fim.EventSink
	if cfg.KafkaEnabled {
		a.events = kafkaadapter.NewWriter(cfg, logger)
		sink = a.events
		logger.Info("lifecycle events enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	}

	generator := fim.NewGenerator(a.downloader, a.retrospective, a.runner,
		hand.Options{Version: cfg.HANDVersion}, logger)
	a.ensurer = fim.NewEnsurer(layout, generator, sink, clock, metrics, logger)
	a.catalog = fim.NewObjectCatalog(a.catalogStore, cfg.CatalogKey, metrics, logger)
	a.service = fim.NewService(a.catalog, a.catalogStore, a.ensurer, sink, cfg.WorkDir, clock, metrics, logger)

	return a, nil
}

func (a *app) forecast(ctx context.Context) (*streamflow.Forecast, func(), error) {
	store, err := gcs.NewStore(ctx, a.cfg.NWMForecastBucket, "", a.metrics, a.logger)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := store.Close(); err != nil {
			a.logger.Warn("close gcs client", "error", err)
		}
	}
	return streamflow.NewForecast(a.layout, store, a.clock, a.cfg.Workers, a.metrics, a.logger), closeFn, nil
}

func (a *app) geoglows() *streamflow.GEOGLOWS {
	client := geoglows.NewClient(a.cfg.GeoGLOWSURL, a.cfg.HTTPTimeout, a.logger)
	return streamflow.NewGEOGLOWS(a.layout, client, a.clock, a.cfg.Workers, a.metrics, a.logger)
}

func (a *app) usgs() *streamflow.USGS {
	client := usgs.NewClient(a.cfg.USGSURL, a.cfg.HTTPTimeout, a.metrics, a.logger)
	cached := usgs.NewCachedFetcher(client, a.cfg.USGSCacheSize, a.metrics)
	return streamflow.NewUSGS(a.layout, cached, a.metrics, a.logger)
}

func (a *app) close() {
	if a.events == nil {
		return
	}
	if err := a.events.Close(); err != nil {
		a.logger.Error("kafka writer close error", "error", err)
	}
}

func handOptions(version, streamOrder string) (hand.Options, error) {
	filter, err := hand.ParseStreamOrder(streamOrder)
	if err != nil {
		return hand.Options{}, fmt.Errorf("--stream-order: %w", err)
	}
	return hand.Options{Version: version, StreamOrder: filter}, nil
}
