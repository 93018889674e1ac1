package httpapi

import (
	"errors"

	"tracedb/pkg/types"
)

var errMissingQuery = errors.New("missing required query parameter: q")

func kindLabel(k types.QueryKind) string {
	switch k {
	case types.QueryFilter:
		return "filter"
	case types.QueryRegexFilter:
		return "regex"
	default:
		return "tree"
	}
}

type queryResponse struct {
	Expression string     `json:"expression"`
	Kind       string     `json:"kind"`
	Compiled   string     `json:"compiled"`
	DurationMS float64    `json:"duration_ms"`
	Cancelled  bool       `json:"cancelled"`
	Results    []nodeView `json:"results"`
}

// nodeView is the JSON projection of a types.Node result: enough to
// identify and display it without exposing the query engine's
// internal node types across the HTTP boundary.
type nodeView struct {
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	Value    string `json:"value"`
	Position uint64 `json:"position"`
}

func nodeKindLabel(k types.NodeKind) string {
	switch k {
	case types.NodeDatabase:
		return "database"
	case types.NodeZone:
		return "zone"
	case types.NodeScopeNode:
		return "scope"
	case types.NodeEventNode:
		return "event"
	default:
		return "unknown"
	}
}

func renderNodes(nodes []types.Node) []nodeView {
	out := make([]nodeView, len(nodes))
	for i, n := range nodes {
		out[i] = nodeView{
			Kind:     nodeKindLabel(n.NodeType()),
			Name:     n.NodeName(),
			Value:    n.NodeValue(),
			Position: n.NodePosition(),
		}
	}
	return out
}

type zoneSummary struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Location    string `json:"location"`
	OpenScopes  int    `json:"open_scopes"`
	Fingerprint uint64 `json:"fingerprint"`
}

type summaryResponse struct {
	TotalEvents uint64 `json:"total_events"`
	ZoneCount   int    `json:"zone_count"`
	FlowCount   int    `json:"flow_count"`
	FirstEvent  *int64 `json:"first_event,omitempty"`
	LastEvent   *int64 `json:"last_event,omitempty"`
	Timebase    *int64 `json:"timebase,omitempty"`
}

type healthzResponse struct {
	Status            string  `json:"status"`
	Uptime            string  `json:"uptime"`
	CPUPercent        float64 `json:"cpu_percent"`
	MemoryUsedPercent float64 `json:"memory_used_percent"`
}
