package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesFilters(t *testing.T) {
	meta := map[string]any{
		"doc_type":   "deal",
		"industry":   "fintech",
		"deal_value": float64(500000),
		"tags":       []any{"pricing", "enterprise"},
	}

	tests := []struct {
		name    string
		filters map[string]any
		want    bool
	}{
		{"no filters", nil, true},
		{"scalar match", map[string]any{"doc_type": "deal"}, true},
		{"scalar mismatch", map[string]any{"doc_type": "proposal"}, false},
		{"two scalars both match", map[string]any{"doc_type": "deal", "industry": "fintech"}, true},
		{"two scalars one mismatch", map[string]any{"doc_type": "deal", "industry": "retail"}, false},
		{"list contains", map[string]any{"doc_type": []any{"deal", "proposal"}}, true},
		{"list excludes", map[string]any{"doc_type": []any{"product", "proposal"}}, false},
		{"string slice list", map[string]any{"industry": []string{"fintech", "retail"}}, true},
		{"missing key excludes", map[string]any{"company_size": "enterprise"}, false},
		{"numeric survives json round trip", map[string]any{"deal_value": 500000}, true},
		{"scalar matches stored list member", map[string]any{"tags": "pricing"}, true},
		{"scalar not in stored list", map[string]any{"tags": "onboarding"}, false},
		{"filter list intersects stored list", map[string]any{"tags": []any{"onboarding", "enterprise"}}, true},
		{"filter list disjoint from stored list", map[string]any{"tags": []string{"onboarding", "renewal"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchesFilters(meta, tt.filters))
		})
	}
}

func TestBuildFilterSQL(t *testing.T) {
	where, args := buildFilterSQL(nil, 2)
	assert.Empty(t, where)
	assert.Empty(t, args)

	where, args = buildFilterSQL(map[string]any{"doc_type": "deal"}, 2)
	assert.Equal(t, "WHERE metadata->>'doc_type' = $2", where)
	assert.Equal(t, []any{"deal"}, args)

	where, args = buildFilterSQL(map[string]any{"doc_type": []any{"deal", "proposal"}}, 2)
	assert.Equal(t, "WHERE metadata->>'doc_type' = ANY($2)", where)
	assert.Equal(t, []any{[]string{"deal", "proposal"}}, args)
}

func TestBuildFilterSQL_ListValuedKeys(t *testing.T) {
	where, args := buildFilterSQL(map[string]any{"tags": "pricing"}, 2)
	assert.Equal(t, "WHERE metadata->'tags' @> to_jsonb($2::text)", where)
	assert.Equal(t, []any{"pricing"}, args)

	where, args = buildFilterSQL(map[string]any{"tags": []string{"pricing", "renewal"}}, 2)
	assert.Equal(t, "WHERE metadata->'tags' ?| $2", where)
	assert.Equal(t, []any{[]string{"pricing", "renewal"}}, args)
}

func TestMatchesFilters_StoredStringSlice(t *testing.T) {
	meta := map[string]any{"tags": []string{"pricing", "enterprise"}}
	assert.True(t, matchesFilters(meta, map[string]any{"tags": "enterprise"}))
	assert.False(t, matchesFilters(meta, map[string]any{"tags": "renewal"}))
}

func TestSanitizeKey(t *testing.T) {
	assert.Equal(t, "doc_type", sanitizeKey("doc_type"))
	assert.Equal(t, "doctype", sanitizeKey("doc'-- type"))
}
