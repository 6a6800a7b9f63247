package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"station-dashboard/internal/modules/stations/repository"
	"station-dashboard/internal/modules/stations/types"
	"station-dashboard/internal/mqtt"
)

const insertTimeout = 5 * time.Second

// registerMQTTHandler wires telemetry messages to the measurements table.
// Readings for stations outside the configured institution are rejected.
func registerMQTTHandler(subscriber mqtt.MQTTSubscriber, repo repository.StationRepository, institution string) {
	subscriber.SetMessageHandler(func(telemetry types.Telemetry) error {
		slog.Debug("processing telemetry message",
			"station_code", telemetry.StationCode,
			"timestamp", telemetry.Timestamp,
		)

		ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
		defer cancel()

		known, err := repo.StationExists(ctx, telemetry.StationCode, institution)
		if err != nil {
			return fmt.Errorf("lookup station %q: %w", telemetry.StationCode, err)
		}
		if !known {
			return fmt.Errorf("station %q not in institution %q: %w",
				telemetry.StationCode, institution, types.ErrUnknownStation)
		}

		if err := repo.InsertTelemetry(ctx, telemetry); err != nil {
			slog.Error("failed to store telemetry",
				"station_code", telemetry.StationCode,
				"error", err,
			)
			return err
		}
		return nil
	})
}
