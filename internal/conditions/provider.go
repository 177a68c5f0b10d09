// Package conditions supplies current ambient conditions (cell-relevant
// temperature and plane irradiance) so simulations can run under live sky
// instead of manual overrides.
package conditions

import (
	"context"
	"time"
)

type Data struct {
	Temperature float64   `json:"temperature"` // C
	Irradiance  float64   `json:"irradiance"`  // W/m2
	Source      string    `json:"source"`
	ObservedAt  time.Time `json:"observed_at"`
}

type Provider interface {
	Get(ctx context.Context) (*Data, error)
}
