// Package tools holds the built-in sundog tools: the data fetchers the
// model calls to pull sensor records, system metadata, weather history,
// and modeled solar estimates, plus a clock for resolving relative
// date expressions.
package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rfontaine/sundog/internal/records"
	"github.com/rfontaine/sundog/internal/tool"
)

// maxRangeDays caps a single fetch so one tool call cannot pull an
// unbounded payload into the conversation.
const maxRangeDays = 92

// RegisterAll registers every built-in tool against the registry.
func RegisterAll(reg *tool.Registry, src records.Source, weather records.WeatherService, est records.SolarEstimator) error {
	all := []tool.Tool{
		NewFetchRecords(src),
		NewListSystems(src),
		NewWeatherHistory(weather, src),
		NewSolarEstimate(est),
		NewCurrentTime(),
	}
	for _, t := range all {
		if err := reg.Register(t); err != nil {
			return fmt.Errorf("tools: register %s: %w", t.Name(), err)
		}
	}
	return nil
}

// rangeParams is the common from/to parameter pair.
type rangeParams struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// parseRange validates and parses RFC3339 from/to parameters.
func parseRange(p rangeParams) (records.TimeRange, error) {
	from, err := time.Parse(time.RFC3339, p.From)
	if err != nil {
		return records.TimeRange{}, fmt.Errorf("invalid 'from' timestamp %q: expected RFC3339", p.From)
	}
	to, err := time.Parse(time.RFC3339, p.To)
	if err != nil {
		return records.TimeRange{}, fmt.Errorf("invalid 'to' timestamp %q: expected RFC3339", p.To)
	}
	r := records.TimeRange{From: from, To: to}
	if !to.After(from) {
		return records.TimeRange{}, fmt.Errorf("'to' (%s) must be after 'from' (%s)", p.To, p.From)
	}
	if r.Days() > maxRangeDays {
		return records.TimeRange{}, fmt.Errorf("range spans %d days, maximum is %d; narrow the range", r.Days(), maxRangeDays)
	}
	return r, nil
}

// collaboratorOutput maps a collaborator error to a model-facing failure
// Output. ErrNoData and ErrUpstream are expected conditions the model
// should see and react to; anything else propagates as a real error.
func collaboratorOutput(err error) (tool.Output, error) {
	switch {
	case errors.Is(err, records.ErrNoData):
		return tool.Errorf("no data available: %v", err), nil
	case errors.Is(err, records.ErrUpstream):
		return tool.Errorf("data source temporarily unavailable: %v", err), nil
	default:
		return tool.Output{}, err
	}
}

// jsonOutput marshals v into a success Output.
func jsonOutput(v any) (tool.Output, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return tool.Output{}, fmt.Errorf("tools: marshal output: %w", err)
	}
	return tool.Output{Content: string(b)}, nil
}
