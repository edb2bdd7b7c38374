package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rfontaine/sundog/internal/records"
	"github.com/rfontaine/sundog/internal/tool"
)

// SolarEstimate returns modeled expected output for a system, used to
// compare actual production against clear-sky expectations.
type SolarEstimate struct {
	est records.SolarEstimator
}

// NewSolarEstimate wraps a solar estimator as a tool.
func NewSolarEstimate(est records.SolarEstimator) *SolarEstimate {
	return &SolarEstimate{est: est}
}

// Name implements tool.Tool.
func (t *SolarEstimate) Name() string { return "solar_estimate" }

// Description implements tool.Tool.
func (t *SolarEstimate) Description() string {
	return "Fetch modeled expected solar output for a system over a time range. " +
		"Compare against fetch_records to spot underperformance."
}

// Schema implements tool.Tool.
func (t *SolarEstimate) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"system_id": {"type": "string", "description": "Identifier of the monitored system"},
			"from": {"type": "string", "description": "Range start, RFC3339 timestamp"},
			"to": {"type": "string", "description": "Range end (exclusive), RFC3339 timestamp"}
		},
		"required": ["system_id", "from", "to"]
	}`)
}

// Execute implements tool.Tool.
func (t *SolarEstimate) Execute(ctx context.Context, args json.RawMessage) (tool.Output, error) {
	var params struct {
		SystemID string `json:"system_id"`
		rangeParams
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return tool.Output{}, fmt.Errorf("%w: %v", tool.ErrInvalidArguments, err)
	}
	if params.SystemID == "" {
		return tool.Errorf("missing required parameter 'system_id'"), nil
	}
	r, err := parseRange(params.rangeParams)
	if err != nil {
		return tool.Errorf("%v", err), nil
	}

	samples, err := t.est.Estimate(ctx, params.SystemID, r)
	if err != nil {
		return collaboratorOutput(err)
	}
	return jsonOutput(samples)
}

// CurrentTime reports the current time so the model can resolve relative
// expressions like "last week" into concrete ranges.
type CurrentTime struct {
	now func() time.Time
}

// NewCurrentTime creates the clock tool.
func NewCurrentTime() *CurrentTime {
	return &CurrentTime{now: time.Now}
}

// Name implements tool.Tool.
func (t *CurrentTime) Name() string { return "current_time" }

// Description implements tool.Tool.
func (t *CurrentTime) Description() string {
	return "Get the current date and time in UTC. Use this to resolve relative date expressions before fetching data."
}

// Schema implements tool.Tool.
func (t *CurrentTime) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

// Execute implements tool.Tool.
func (t *CurrentTime) Execute(_ context.Context, _ json.RawMessage) (tool.Output, error) {
	now := t.now().UTC()
	return jsonOutput(map[string]string{
		"now":     now.Format(time.RFC3339),
		"weekday": now.Weekday().String(),
	})
}
