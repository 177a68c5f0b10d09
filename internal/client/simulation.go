package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
)

// Valid domains for the optional environmental overrides.
const (
	MinTemperature = -40.0
	MaxTemperature = 85.0
	MinIrradiance  = 0.0
	MaxIrradiance  = 1500.0
)

// Summary holds the five operating-point scalars of a simulated curve.
type Summary struct {
	Voc float64 `json:"Voc"`
	Isc float64 `json:"Isc"`
	Vmp float64 `json:"Vmp"`
	Imp float64 `json:"Imp"`
	Pmp float64 `json:"Pmp"`
}

// SimulationResult is the parsed curve payload. iv_curve and pv_curve are
// (voltage, current) and (voltage, power) pairs on the same ascending voltage
// grid.
type SimulationResult struct {
	ModuleID    int          `json:"module_id"`
	Mode        string       `json:"mode"`
	Irradiance  float64      `json:"irradiance"`
	Temperature float64      `json:"temperature"`
	IVCurve     [][2]float64 `json:"iv_curve"`
	PVCurve     [][2]float64 `json:"pv_curve"`
	Summary     Summary      `json:"summary"`
}

type simulationRequest struct {
	ModuleID                   int      `json:"module_id"`
	UseEnvironmentalConditions bool     `json:"use_environmental_conditions"`
	Temperature                *float64 `json:"temperature,omitempty"`
	Irradiance                 *float64 `json:"irradiance,omitempty"`
}

// SimulationService validates and submits curve-simulation requests.
type SimulationService struct {
	transport *Transport
	logger    *log.Logger
}

func NewSimulationService(transport *Transport, logger *log.Logger) *SimulationService {
	if logger == nil {
		logger = log.Default()
	}
	return &SimulationService{transport: transport, logger: logger}
}

// Simulate requests a curve for the module. Nil temperature/irradiance leave
// the server on standard test conditions; supplying either sets the
// use_environmental_conditions flag. Range violations fail locally before any
// network call and are never rewritten by the generic handler.
func (s *SimulationService) Simulate(ctx context.Context, moduleID int, temperature, irradiance *float64) (*SimulationResult, error) {
	if moduleID <= 0 {
		return nil, &ValidationError{Message: "module id must be a positive integer"}
	}
	if temperature != nil && (*temperature < MinTemperature || *temperature > MaxTemperature) {
		return nil, &ValidationError{
			Message: fmt.Sprintf("temperature must be between %g and %g C", MinTemperature, MaxTemperature),
		}
	}
	if irradiance != nil && (*irradiance < MinIrradiance || *irradiance > MaxIrradiance) {
		return nil, &ValidationError{
			Message: fmt.Sprintf("irradiance must be between %g and %g W/m2", MinIrradiance, MaxIrradiance),
		}
	}

	body := simulationRequest{
		ModuleID:                   moduleID,
		UseEnvironmentalConditions: temperature != nil || irradiance != nil,
		Temperature:                temperature,
		Irradiance:                 irradiance,
	}

	resp, err := s.transport.Post(ctx, "/simulate_iv_curve/", body)
	if err != nil {
		var status *StatusError
		if errors.As(err, &status) {
			switch status.Code {
			case http.StatusNotFound:
				return nil, &NotFoundError{Resource: "module", ID: moduleID}
			case http.StatusInternalServerError:
				return nil, &SimulationError{Detail: status.Detail}
			}
		}
		s.logger.Printf("simulate module %d: %v", moduleID, err)
		return nil, ErrSimulation
	}

	var result SimulationResult
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		s.logger.Printf("simulate module %d: decoding: %v", moduleID, err)
		return nil, ErrSimulation
	}
	return &result, nil
}
