package service

import (
	"station-dashboard/internal/modules/stations/repository"
	"station-dashboard/internal/mqtt"
)

// Service owns the live-ingest path: telemetry arriving over MQTT is checked
// against the station catalog's institution and stored as measurements.
type Service struct {
	repository  repository.StationRepository
	institution string
}

func NewService(repository repository.StationRepository, institution string) *Service {
	return &Service{repository: repository, institution: institution}
}

func (s *Service) Register(subscriber mqtt.MQTTSubscriber) {
	registerMQTTHandler(subscriber, s.repository, s.institution)
}
