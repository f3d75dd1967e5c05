package pipeline

import (
	"strings"

	"github.com/Sumatoshi-tech/miraload/pkg/sink"
)

// Index names.
const (
	CellsIndexPrefix = "dashboard_cells_"
	EntryIndex       = "dashboard_entry"
	MarkerGenesIndex = "marker_genes"
	GenesIndex       = "genes"
)

const (
	maxResultWindow    = 50000
	nestedObjectsLimit = 25000
)

// CellsIndex returns the cells index of a dashboard.
func CellsIndex(dashboardID string) string {
	return CellsIndexPrefix + strings.ToLower(dashboardID)
}

func keywordTemplates() []any {
	return []any{
		map[string]any{
			"string_values": map[string]any{
				"match":              "*",
				"match_mapping_type": "string",
				"mapping":            map[string]any{"type": "keyword"},
			},
		},
	}
}

func nestedMapping(nested ...string) sink.Mapping {
	properties := make(map[string]any, len(nested))
	for _, field := range nested {
		properties[field] = map[string]any{"type": "nested"}
	}

	return sink.Mapping{
		"settings": map[string]any{
			"index": map[string]any{
				"max_result_window": maxResultWindow,
				"mapping": map[string]any{
					"nested_objects": map[string]any{"limit": nestedObjectsLimit},
				},
			},
		},
		"mappings": map[string]any{
			"dynamic_templates": keywordTemplates(),
			"properties":        properties,
		},
	}
}

// CellsMapping maps strings to keyword and genes as nested objects.
func CellsMapping() sink.Mapping {
	return nestedMapping("genes")
}

// EntryMapping is the mapping of EntryIndex.
func EntryMapping() sink.Mapping {
	mapping := nestedMapping("samples")

	properties := mapping["mappings"].(map[string]any)["properties"].(map[string]any)
	properties["date"] = map[string]any{"type": "date"}

	return mapping
}

// KeywordMapping is the mapping of the marker gene and gene list indices.
func KeywordMapping() sink.Mapping {
	return sink.Mapping{
		"settings": map[string]any{
			"index": map[string]any{"max_result_window": maxResultWindow},
		},
		"mappings": map[string]any{
			"dynamic_templates": keywordTemplates(),
		},
	}
}
