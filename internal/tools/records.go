package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rfontaine/sundog/internal/records"
	"github.com/rfontaine/sundog/internal/tool"
)

// FetchRecords returns raw sensor records for a system over a time range.
type FetchRecords struct {
	src records.Source
}

// NewFetchRecords wraps a record source as a tool.
func NewFetchRecords(src records.Source) *FetchRecords {
	return &FetchRecords{src: src}
}

// Name implements tool.Tool.
func (t *FetchRecords) Name() string { return "fetch_records" }

// Description implements tool.Tool.
func (t *FetchRecords) Description() string {
	return "Fetch time-series sensor records for a monitored system over a time range. " +
		"Returns samples with per-metric values (power, energy, temperature and similar)."
}

// Schema implements tool.Tool.
func (t *FetchRecords) Schema() json.RawMessage {
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
func (t *FetchRecords) Execute(ctx context.Context, args json.RawMessage) (tool.Output, error) {
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

	recs, err := t.src.FetchRecords(ctx, params.SystemID, r)
	if err != nil {
		return collaboratorOutput(err)
	}
	return jsonOutput(recs)
}

// ListSystems enumerates monitored installations.
type ListSystems struct {
	src records.Source
}

// NewListSystems wraps a record source's system listing as a tool.
func NewListSystems(src records.Source) *ListSystems {
	return &ListSystems{src: src}
}

// Name implements tool.Tool.
func (t *ListSystems) Name() string { return "list_systems" }

// Description implements tool.Tool.
func (t *ListSystems) Description() string {
	return "List all monitored systems with their identifiers, names, locations, and rated capacity."
}

// Schema implements tool.Tool.
func (t *ListSystems) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

// Execute implements tool.Tool.
func (t *ListSystems) Execute(ctx context.Context, args json.RawMessage) (tool.Output, error) {
	systems, err := t.src.ListSystems(ctx)
	if err != nil {
		return collaboratorOutput(err)
	}
	if len(systems) == 0 {
		return tool.Errorf("no systems are registered"), nil
	}
	return jsonOutput(systems)
}
