package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	httpadapter "github.com/nlweather/knmi-direct/internal/adapter/http"
	kafkaadapter "github.com/nlweather/knmi-direct/internal/adapter/kafka"
	"github.com/nlweather/knmi-direct/internal/adapter/mqttsource"
	"github.com/nlweather/knmi-direct/internal/config"
	"github.com/nlweather/knmi-direct/internal/coordinator"
	"github.com/nlweather/knmi-direct/internal/domain"
	"github.com/nlweather/knmi-direct/internal/knmi"
	"github.com/nlweather/knmi-direct/internal/listener"
	"github.com/nlweather/knmi-direct/internal/observability"
	"github.com/nlweather/knmi-direct/internal/radar"
	"github.com/nlweather/knmi-direct/internal/scheduler"
)

// readiness reports ready once the listener is subscribed and the first
// observation snapshot has been published.
type readiness struct {
	listener     *listener.Listener
	observations *coordinator.Coordinator[domain.ObservationSnapshot]
}

func (r *readiness) CheckReadiness(_ context.Context) error {
	if state := r.listener.State(); state != listener.StateSubscribed {
		return fmt.Errorf("listener %s", state)
	}
	if _, ok := r.observations.Current(); !ok {
		return errors.New("no observation snapshot yet")
	}
	return nil
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	labelZone, err := time.LoadLocation(cfg.RadarTimezone)
	if err != nil {
		logger.Error("invalid radar timezone", "timezone", cfg.RadarTimezone, "error", err)
		os.Exit(1)
	}

	edr := knmi.NewEDRClient(cfg.EDRToken, cfg.ClientTimeout, logger)
	wms := knmi.NewWMSClient(cfg.WMSToken, cfg.ClientTimeout, logger)
	app := knmi.NewAppClient(cfg.ClientTimeout, logger)

	// Observation coordinator: closest-station data for every configured
	// location, refreshed on push notifications.
	cubeStrategy := coordinator.NewCubeStrategy(edr, cfg.Locations, domain.DefaultParameters)
	observations := coordinator.New("observations", cubeStrategy, coordinator.Options[domain.ObservationSnapshot]{
		GraceDelay:          cfg.GraceDelay,
		Dedupe:              coordinator.DedupeEqualWithDistanceCheck,
		DistanceThresholdKM: coordinator.StationDistanceThresholdKM,
		MaxDistance:         domain.ObservationSnapshot.MaxDistance,
	}, clock, logger, metrics)

	// Radar compositor, regenerated lazily when a nowcast notification lands.
	background, err := radar.LoadBackground(cfg.RadarBackgroundPath)
	if err != nil {
		logger.Error("failed to load radar background", "path", cfg.RadarBackgroundPath, "error", err)
		os.Exit(1)
	}
	radar.DrawLocationMarkers(background, radar.BackgroundBBox, cfg.Locations)
	compositor := radar.New(wms, background, radar.Options{
		LabelZone:  labelZone,
		GraceDelay: cfg.GraceDelay,
	}, clock, logger, metrics)

	// Forecast coordinator polls; the App API has no push notifications.
	forecast := coordinator.NewForecastCoordinator(app, cfg.Locations[0], cfg.Region,
		cfg.ForecastInterval, clock, logger, metrics)

	source := mqttsource.New(mqttsource.Config{
		BrokerURL: cfg.BrokerURL,
		Token:     cfg.NotificationToken,
	}, logger)
	lst := listener.New(source, listener.FixedBackoff{Delay: cfg.ListenerBackoff}, clock, logger, metrics)
	lst.Register(domain.DatasetObservations, "observations", observations.HandleNotification)
	lst.Register(domain.DatasetRadarForecast, "radar", compositor.HandleNotification)

	var sink *kafkaadapter.SnapshotWriter
	if cfg.KafkaEnabled {
		sink = kafkaadapter.NewSnapshotWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger, metrics)
		observations.Subscribe(func(snapshot domain.ObservationSnapshot) {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.ClientTimeout)
			defer cancel()
			if err := sink.PublishObservations(ctx, snapshot); err != nil {
				logger.Error("kafka publish failed", "error", err)
			}
		})
		logger.Info("kafka sink enabled", "topic", cfg.KafkaTopic)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, observations, forecast, compositor,
		&readiness{listener: lst, observations: observations}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initial snapshots before the listener takes over. Failures here are not
	// fatal; notifications and the scheduler will fill the gaps.
	bootCtx, bootCancel := context.WithTimeout(ctx, cfg.ClientTimeout)
	if err := observations.FirstRefresh(bootCtx); err != nil {
		logger.Warn("initial observation refresh failed", "error", err)
	}
	if err := forecast.FirstRefresh(bootCtx); err != nil {
		logger.Warn("initial forecast refresh failed", "error", err)
	}
	bootCancel()

	sched := scheduler.New(cfg.ClientTimeout, logger)
	sched.Add(forecast)
	if err := sched.Start(); err != nil {
		logger.Error("scheduler start failed", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := lst.Run(ctx); err != nil {
			logger.Error("listener error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if sink != nil {
		if err := sink.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
