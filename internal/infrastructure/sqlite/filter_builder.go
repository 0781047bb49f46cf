package sqlite

import (
	"fmt"
	"strings"
	"time"

	"github.com/martijn/vaultkeeper/internal/api/util"
)

// datetimeFields are compared as text, so user input is normalized first
var datetimeFields = map[string]bool{
	"start_time": true,
	"end_time":   true,
	"since":      true,
	"created_at": true,
	"updated_at": true,
}

var comparisons = map[util.QueryOperator]string{
	util.OpEq:  "=",
	util.OpNe:  "!=",
	util.OpGt:  ">",
	util.OpGte: ">=",
	util.OpLt:  "<",
	util.OpLte: "<=",
}

var inputTimeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// normalizeDateTime rewrites user supplied times to "2006-01-02 15:04:05" in UTC.
// modernc/sqlite stores "2006-01-02 15:04:05.999999999-07:00", and the
// space separated prefix compares correctly against it as text.
func normalizeDateTime(value string) string {
	for _, format := range inputTimeFormats {
		if t, err := time.Parse(format, value); err == nil {
			return t.UTC().Format("2006-01-02 15:04:05")
		}
	}
	return value
}

func filterArg(field, value string) interface{} {
	if datetimeFields[field] {
		return normalizeDateTime(value)
	}
	return value
}

// BuildFilterClause turns one condition into a WHERE fragment. Field names
// must already be checked against the endpoint's allowed fields.
func BuildFilterClause(f util.QueryFilter) (string, []interface{}) {
	if cmp, ok := comparisons[f.Operator]; ok {
		value, ok := f.Value.(string)
		if !ok {
			return "", nil
		}
		return fmt.Sprintf("%s %s ?", f.Field, cmp), []interface{}{filterArg(f.Field, value)}
	}

	switch f.Operator {
	case util.OpIsNull:
		return f.Field + " IS NULL", nil
	case util.OpIsNotNull:
		return f.Field + " IS NOT NULL", nil
	case util.OpIn, util.OpNin:
		values, ok := f.Value.([]string)
		if !ok || len(values) == 0 {
			return "", nil
		}
		args := make([]interface{}, len(values))
		for i, v := range values {
			args[i] = filterArg(f.Field, v)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
		verb := "IN"
		if f.Operator == util.OpNin {
			verb = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", f.Field, verb, placeholders), args
	}
	return "", nil
}

// ApplyFilters appends every condition to a query that already has a WHERE clause
func ApplyFilters(query string, args []interface{}, filters []util.QueryFilter) (string, []interface{}) {
	for _, f := range filters {
		clause, filterArgs := BuildFilterClause(f)
		if clause != "" {
			query += " AND " + clause
			args = append(args, filterArgs...)
		}
	}
	return query, args
}

// ApplyOrdering orders by the requested clauses or defaultOrder. Rows that
// tie are ordered by id so pages stay stable.
func ApplyOrdering(query string, orders []util.OrderClause, defaultOrder string) string {
	if len(orders) == 0 {
		return query + " ORDER BY " + defaultOrder + ", id DESC"
	}

	clauses := make([]string, 0, len(orders)+1)
	hasID := false
	for _, o := range orders {
		direction := "ASC"
		if o.Direction == util.OrderDesc {
			direction = "DESC"
		}
		hasID = hasID || o.Field == "id"
		clauses = append(clauses, o.Field+" "+direction)
	}
	if !hasID {
		clauses = append(clauses, "id ASC")
	}
	return query + " ORDER BY " + strings.Join(clauses, ", ")
}

// ApplyPagination adds LIMIT and OFFSET; perPage 0 returns everything
func ApplyPagination(query string, args []interface{}, page, perPage int) (string, []interface{}) {
	if perPage <= 0 {
		return query, args
	}
	query += " LIMIT ?"
	args = append(args, perPage)
	if page > 1 {
		query += " OFFSET ?"
		args = append(args, (page-1)*perPage)
	}
	return query, args
}
