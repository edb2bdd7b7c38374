package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rfontaine/sundog/internal/records"
	"github.com/rfontaine/sundog/internal/tool"
)

// WeatherHistory returns historical weather for a system's location or an
// explicit coordinate pair.
type WeatherHistory struct {
	svc records.WeatherService
	src records.Source
}

// NewWeatherHistory wraps a weather service as a tool. The record source
// is used to resolve a system_id into coordinates.
func NewWeatherHistory(svc records.WeatherService, src records.Source) *WeatherHistory {
	return &WeatherHistory{svc: svc, src: src}
}

// Name implements tool.Tool.
func (t *WeatherHistory) Name() string { return "weather_history" }

// Description implements tool.Tool.
func (t *WeatherHistory) Description() string {
	return "Fetch historical weather (temperature, cloud cover, irradiance) for a location over a time range. " +
		"Pass either a system_id to use that system's location, or explicit lat/lon coordinates."
}

// Schema implements tool.Tool.
func (t *WeatherHistory) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"system_id": {"type": "string", "description": "System whose location to use (alternative to lat/lon)"},
			"lat": {"type": "number", "description": "Latitude in decimal degrees"},
			"lon": {"type": "number", "description": "Longitude in decimal degrees"},
			"from": {"type": "string", "description": "Range start, RFC3339 timestamp"},
			"to": {"type": "string", "description": "Range end (exclusive), RFC3339 timestamp"}
		},
		"required": ["from", "to"]
	}`)
}

// Execute implements tool.Tool.
func (t *WeatherHistory) Execute(ctx context.Context, args json.RawMessage) (tool.Output, error) {
	var params struct {
		SystemID string   `json:"system_id"`
		Lat      *float64 `json:"lat"`
		Lon      *float64 `json:"lon"`
		rangeParams
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return tool.Output{}, fmt.Errorf("%w: %v", tool.ErrInvalidArguments, err)
	}
	r, err := parseRange(params.rangeParams)
	if err != nil {
		return tool.Errorf("%v", err), nil
	}

	lat, lon, out, err := t.resolveLocation(ctx, params.SystemID, params.Lat, params.Lon)
	if err != nil || out.IsError {
		return out, err
	}

	samples, err := t.svc.History(ctx, lat, lon, r)
	if err != nil {
		return collaboratorOutput(err)
	}
	return jsonOutput(samples)
}

// resolveLocation picks coordinates from explicit lat/lon or looks them up
// by system ID. Missing location details come back as a failure Output.
func (t *WeatherHistory) resolveLocation(ctx context.Context, systemID string, lat, lon *float64) (float64, float64, tool.Output, error) {
	if lat != nil && lon != nil {
		return *lat, *lon, tool.Output{}, nil
	}
	if systemID == "" {
		return 0, 0, tool.Errorf("provide either 'system_id' or both 'lat' and 'lon'"), nil
	}

	systems, err := t.src.ListSystems(ctx)
	if err != nil {
		out, err := collaboratorOutput(err)
		return 0, 0, out, err
	}
	for _, s := range systems {
		if s.ID == systemID {
			return s.Latitude, s.Longitude, tool.Output{}, nil
		}
	}
	return 0, 0, tool.Errorf("unknown system %q; call list_systems for valid identifiers", systemID), nil
}
