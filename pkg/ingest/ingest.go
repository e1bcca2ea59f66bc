// Package ingest accepts validated sensor readings, runs rule evaluation
// against them and persists them. Evaluation happens before the reading
// is written, so threshold debouncing still sees the previous aggregate.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Hakopstar/VcelJAK/pkg/engine"
	"github.com/Hakopstar/VcelJAK/pkg/model"
	"github.com/Hakopstar/VcelJAK/pkg/store"
	"github.com/Hakopstar/VcelJAK/pkg/timeseries"
)

// Reading is one incoming, unit-normalized sensor measurement.
type Reading struct {
	SensorID  string    `json:"sensor_id"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// SensorStore is the slice of the relational store the intake needs.
type SensorStore interface {
	GetSensor(ctx context.Context, sensorID string) (*model.Sensor, error)
	UpdateSensorReading(ctx context.Context, sensorID string, value float64, unit string, at time.Time) error
}

// Recorder receives intake outcome notifications.
type Recorder interface {
	RecordIngest(status string)
}

type nopRecorder struct{}

func (nopRecorder) RecordIngest(string) {}

// ErrUnknownSensor rejects readings from sensors that are not registered.
var ErrUnknownSensor = errors.New("unknown sensor")

// ErrImplausibleReading rejects readings outside the acceptance bounds of
// their measurement.
var ErrImplausibleReading = errors.New("implausible reading")

// acceptanceBounds are per-measurement plausibility limits for normalized
// readings. Values outside them are sensor faults, not data.
var acceptanceBounds = map[string]struct{ min, max float64 }{
	"temperature":          {-60, 120},
	"humidity":             {0, 100},
	"pressure":             {200, 1200},
	"weight":               {0, 1000},
	"wind_speed":           {0, 120},
	"wind_vane":            {0, 360},
	"light":                {0, 200000},
	"battery_voltage":      {0, 30},
	"solar_wattage":        {0, 1000},
	"sound_pressure_level": {0, 200},
}

// Service is the reading intake pipeline.
type Service struct {
	store        SensorStore
	orchestrator *engine.Orchestrator
	writer       timeseries.Writer
	logger       *slog.Logger
	recorder     Recorder
}

// NewService creates an intake service. recorder may be nil.
func NewService(st SensorStore, orchestrator *engine.Orchestrator, writer timeseries.Writer, logger *slog.Logger, recorder Recorder) *Service {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Service{
		store:        st,
		orchestrator: orchestrator,
		writer:       writer,
		logger:       logger.With("component", "ingest"),
		recorder:     recorder,
	}
}

// HandleReading processes one reading: resolve the sensor, evaluate the
// owning group's rules against the new value, then persist the reading to
// the relational and time-series stores. Rule failures never block
// persistence.
func (s *Service) HandleReading(ctx context.Context, r Reading) error {
	if r.SensorID == "" {
		s.recorder.RecordIngest("rejected")
		return fmt.Errorf("missing sensor id")
	}

	sensor, err := s.store.GetSensor(ctx, r.SensorID)
	if err != nil {
		s.recorder.RecordIngest("rejected")
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownSensor, r.SensorID)
		}
		return fmt.Errorf("failed to resolve sensor %s: %w", r.SensorID, err)
	}

	measurement := model.NormalizeMeasurement(sensor.Measurement)
	if bounds, ok := acceptanceBounds[measurement]; ok && (r.Value < bounds.min || r.Value > bounds.max) {
		s.recorder.RecordIngest("rejected")
		return fmt.Errorf("%w: %s=%v outside [%v, %v]",
			ErrImplausibleReading, measurement, r.Value, bounds.min, bounds.max)
	}

	at := r.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	if sensor.GroupID != "" {
		event := model.TriggerEvent{
			GroupID:     sensor.GroupID,
			Kind:        model.EventMeasurement,
			Measurement: measurement,
			Value:       decimal.NewFromFloat(r.Value),
			HasValue:    true,
			Unit:        r.Unit,
			SensorID:    sensor.ID,
			Timestamp:   at,
		}
		if _, err := s.orchestrator.CheckAndTrigger(ctx, event); err != nil {
			// Automation must never block ingestion.
			s.logger.Error("rule evaluation failed", "sensor_id", sensor.ID, "group_id", sensor.GroupID, "error", err)
		}
	}

	if err := s.store.UpdateSensorReading(ctx, sensor.ID, r.Value, r.Unit, at); err != nil {
		s.recorder.RecordIngest("rejected")
		return fmt.Errorf("failed to persist reading: %w", err)
	}
	if s.writer != nil {
		if err := s.writer.WritePoint(ctx, sensor.GroupID, sensor.ID,
			measurement, r.Value, r.Unit, at); err != nil {
			s.logger.Error("time-series write failed", "sensor_id", sensor.ID, "error", err)
		}
	}

	s.recorder.RecordIngest("accepted")
	return nil
}

// Handler returns the HTTP endpoint accepting readings as JSON.
func (s *Service) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var reading Reading
		if err := json.NewDecoder(r.Body).Decode(&reading); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		if err := s.HandleReading(r.Context(), reading); err != nil {
			if errors.Is(err, ErrUnknownSensor) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			if errors.Is(err, ErrImplausibleReading) {
				http.Error(w, err.Error(), http.StatusUnprocessableEntity)
				return
			}
			s.logger.Error("reading rejected", "error", err)
			http.Error(w, "failed to process reading", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
}
