package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"station-dashboard/internal/config"
	"station-dashboard/internal/db"
	"station-dashboard/internal/httpapi"
	"station-dashboard/internal/modules/dashboard"
	"station-dashboard/internal/modules/dashboard/controller"
	"station-dashboard/internal/modules/dashboard/views"
	"station-dashboard/internal/modules/stations"
	"station-dashboard/internal/modules/stations/catalog"
	"station-dashboard/internal/modules/stations/repository"
	"station-dashboard/internal/modules/stations/timeseries"
	"station-dashboard/internal/mqtt"
)

func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"driver", cfg.Driver,
		"maxOpenConns", cfg.MaxOpenConns,
		"maxIdleConns", cfg.MaxIdleConns,
		"fetchTimeout", cfg.FetchTimeout,
		"mqttEnabled", cfg.MQTTEnabled,
	)

	settings, err := config.LoadSettings(cfg.SettingsPath)
	if err != nil {
		return err
	}
	slog.Info("dashboard settings loaded",
		"institution", settings.Institution,
		"defaultYear", settings.DefaultYear,
		"defaultVariable", settings.DefaultVariable,
	)

	dbConn, err := db.Open(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() {
		closeErr := db.Close(dbConn)
		if closeErr != nil {
			slog.Error("db close", "error", closeErr)
		}
	}()

	repo, err := repository.NewRepository(dbConn, cfg.Driver)
	if err != nil {
		return err
	}

	// The catalog must load before the first page render; a database without
	// stations is a deployment error, not a degraded mode.
	cat := catalog.New(repo, settings.Institution)
	if err := cat.Load(ctx); err != nil {
		return err
	}
	slog.Info("station catalog loaded", "stations", cat.Len())

	provider := timeseries.New(repo, settings.Institution, cfg.FetchTimeout)

	if err := views.LoadTemplates(); err != nil {
		return err
	}

	mux := httpapi.NewMux(dbConn)
	dashboard.RegisterFeature(ctx, mux, cat, provider, controller.Settings{
		Institution:     settings.Institution,
		DefaultYear:     settings.DefaultYear,
		DefaultVariable: settings.DefaultVariable,
	})

	var mqttSubscriber *mqtt.Subscriber
	if cfg.MQTTEnabled {
		// Register the ingest handler before Connect so the subscription is
		// in place when the broker starts delivering queued messages.
		mqttSubscriber = mqtt.NewSubscriber(cfg, slog.Default())
		stations.RegisterIngest(mqttSubscriber, repo, settings.Institution)

		// Short timeout for the initial connect so startup is not blocked
		// when the broker is down.
		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		err = mqttSubscriber.Connect(connectCtx)
		connectCancel()
		if err != nil {
			slog.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
		}
	}

	srv := httpapi.NewServer(cfg, mux)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if mqttSubscriber != nil {
		slog.Info("mqtt disconnecting")
		mqttSubscriber.Disconnect()
	}

	slog.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}
