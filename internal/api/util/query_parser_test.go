package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQueryString(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    []QueryFilter
		wantErr bool
	}{
		{name: "empty", query: "", want: nil},
		{name: "implicit eq", query: "status|failed", want: []QueryFilter{{Field: "status", Operator: OpEq, Value: "failed"}}},
		{name: "null check", query: "end_time|isnull", want: []QueryFilter{{Field: "end_time", Operator: OpIsNull}}},
		{name: "explicit operator", query: "start_time|GTE|2026-01-01", want: []QueryFilter{{Field: "start_time", Operator: OpGte, Value: "2026-01-01"}}},
		{
			name:  "list operator",
			query: "status|in|failed,running",
			want:  []QueryFilter{{Field: "status", Operator: OpIn, Value: []string{"failed", "running"}}},
		},
		{
			name:  "list operator followed by condition",
			query: "type|nin|backup,restore,status|success",
			want: []QueryFilter{
				{Field: "type", Operator: OpNin, Value: []string{"backup", "restore"}},
				{Field: "status", Operator: OpEq, Value: "success"},
			},
		},
		{name: "bare value after eq", query: "status|failed,running", wantErr: true},
		{
			name:  "multiple conditions",
			query: "type|backup, status|ne|success",
			want: []QueryFilter{
				{Field: "type", Operator: OpEq, Value: "backup"},
				{Field: "status", Operator: OpNe, Value: "success"},
			},
		},
		{name: "unknown operator", query: "id|like|1", wantErr: true},
		{name: "too many parts", query: "a|b|c|d", wantErr: true},
		{name: "single part", query: "status", wantErr: true},
		{name: "missing field", query: "|value", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseQueryString(tt.query)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseOrderString(t *testing.T) {
	orders, err := ParseOrderString("start_time|DESC,id|asc")
	require.NoError(t, err)
	assert.Equal(t, []OrderClause{{Field: "start_time", Direction: OrderDesc}, {Field: "id", Direction: OrderAsc}}, orders)

	_, err = ParseOrderString("start_time|sideways")
	assert.Error(t, err)

	_, err = ParseOrderString("start_time")
	assert.Error(t, err)
}

func TestValidateFields(t *testing.T) {
	allowed := []string{"id", "status"}

	assert.NoError(t, ValidateFilterFields([]QueryFilter{{Field: "status"}}, allowed))
	assert.ErrorContains(t, ValidateFilterFields([]QueryFilter{{Field: "pid"}}, allowed), "invalid query field: pid")

	assert.NoError(t, ValidateOrderFields([]OrderClause{{Field: "id"}}, allowed))
	assert.ErrorContains(t, ValidateOrderFields([]OrderClause{{Field: "start_time"}}, allowed), "invalid order field")
}
