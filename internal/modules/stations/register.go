package stations

import (
	"station-dashboard/internal/modules/stations/repository"
	"station-dashboard/internal/modules/stations/service"
	"station-dashboard/internal/mqtt"
)

// RegisterIngest attaches the telemetry ingest handler to the MQTT
// subscriber. Call before the subscriber connects.
func RegisterIngest(subscriber mqtt.MQTTSubscriber, repo repository.StationRepository, institution string) {
	ingest := service.NewService(repo, institution)
	ingest.Register(subscriber)
}
