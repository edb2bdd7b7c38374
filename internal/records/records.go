// Package records defines the narrow interfaces to the external data
// collaborators: the sensor record store, the weather history service,
// and the solar output estimator. HTTP-backed implementations included.
// The loop never talks to these directly; tools wrap them.
package records

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for collaborator calls.
var (
	// ErrNoData indicates the requested range holds no records. This is
	// an expected condition, fed back to the model as information.
	ErrNoData = errors.New("no records in range")

	// ErrUpstream indicates the collaborator is temporarily unavailable.
	ErrUpstream = errors.New("upstream unavailable")
)

// TimeRange is a half-open [From, To) interval.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Days returns the range length in whole days, rounded up.
func (r TimeRange) Days() int {
	d := r.To.Sub(r.From)
	if d <= 0 {
		return 0
	}
	return int((d + 24*time.Hour - 1) / (24 * time.Hour))
}

// Record is one time-series sensor sample. The loop treats the metric
// payload as opaque; only tools and the presentation layer interpret it.
type Record struct {
	SystemID  string             `json:"system_id"`
	Timestamp time.Time          `json:"timestamp"`
	Metrics   map[string]float64 `json:"metrics"`
}

// SystemInfo describes one monitored installation.
type SystemInfo struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	CapacityW float64 `json:"capacity_w"`
}

// WeatherSample is one weather history observation.
type WeatherSample struct {
	Timestamp   time.Time `json:"timestamp"`
	TempC       float64   `json:"temp_c"`
	CloudCover  float64   `json:"cloud_cover"`
	Irradiance  float64   `json:"irradiance_w_m2"`
	Description string    `json:"description,omitempty"`
}

// EstimateSample is one modeled solar output estimate.
type EstimateSample struct {
	Timestamp time.Time `json:"timestamp"`
	OutputW   float64   `json:"output_w"`
}

// Source fetches stored sensor records.
type Source interface {
	// FetchRecords returns records for the system in the range, or
	// ErrNoData when the range is empty.
	FetchRecords(ctx context.Context, systemID string, r TimeRange) ([]Record, error)

	// ListSystems returns all monitored systems.
	ListSystems(ctx context.Context) ([]SystemInfo, error)
}

// WeatherService returns historical weather for a location.
type WeatherService interface {
	History(ctx context.Context, lat, lon float64, r TimeRange) ([]WeatherSample, error)
}

// SolarEstimator returns modeled expected output for a system.
type SolarEstimator interface {
	Estimate(ctx context.Context, systemID string, r TimeRange) ([]EstimateSample, error)
}
