package util

import (
	"fmt"
	"strings"
)

// QueryOperator represents a filter operator
type QueryOperator string

const (
	OpEq        QueryOperator = "eq"
	OpNe        QueryOperator = "ne"
	OpGt        QueryOperator = "gt"
	OpGte       QueryOperator = "gte"
	OpLt        QueryOperator = "lt"
	OpLte       QueryOperator = "lte"
	OpIn        QueryOperator = "in"
	OpNin       QueryOperator = "nin"
	OpIsNull    QueryOperator = "isnull"
	OpIsNotNull QueryOperator = "isnotnull"
)

// QueryFilter represents a single filter condition
type QueryFilter struct {
	Field    string
	Operator QueryOperator
	Value    interface{} // string, []string for in/nin, nil for null checks
}

type OrderDirection string

const (
	OrderAsc  OrderDirection = "asc"
	OrderDesc OrderDirection = "desc"
)

type OrderClause struct {
	Field     string
	Direction OrderDirection
}

var validOperators = map[string]QueryOperator{
	"eq":        OpEq,
	"ne":        OpNe,
	"gt":        OpGt,
	"gte":       OpGte,
	"lt":        OpLt,
	"lte":       OpLte,
	"in":        OpIn,
	"nin":       OpNin,
	"isnull":    OpIsNull,
	"isnotnull": OpIsNotNull,
}

// ParseQueryString parses comma separated conditions of the form
// field|value, field|isnull, field|isnotnull or field|operator|value.
// List operators keep taking values up to the next condition:
// status|in|failed,running,type|backup
func ParseQueryString(queryStr string) ([]QueryFilter, error) {
	var filters []QueryFilter

	for _, cond := range splitList(queryStr) {
		parts := strings.Split(cond, "|")

		if len(parts) == 1 && len(filters) > 0 {
			last := &filters[len(filters)-1]
			if values, ok := last.Value.([]string); ok {
				last.Value = append(values, cond)
				continue
			}
		}

		var filter QueryFilter
		switch len(parts) {
		case 2:
			filter = QueryFilter{Field: parts[0], Operator: OpEq, Value: parts[1]}
			if op := QueryOperator(strings.ToLower(parts[1])); op == OpIsNull || op == OpIsNotNull {
				filter = QueryFilter{Field: parts[0], Operator: op}
			}
		case 3:
			op, ok := validOperators[strings.ToLower(parts[1])]
			if !ok {
				return nil, fmt.Errorf("invalid operator: %s", parts[1])
			}
			filter = QueryFilter{Field: parts[0], Operator: op, Value: parts[2]}
			switch op {
			case OpIn, OpNin:
				filter.Value = []string{parts[2]}
			case OpIsNull, OpIsNotNull:
				filter.Value = nil
			}
		default:
			return nil, fmt.Errorf("invalid query format: %s (expected field|value or field|operator|value)", cond)
		}

		if filter.Field == "" {
			return nil, fmt.Errorf("invalid query format: %s (missing field)", cond)
		}
		filters = append(filters, filter)
	}

	return filters, nil
}

// ParseOrderString parses comma separated field|direction clauses
func ParseOrderString(orderStr string) ([]OrderClause, error) {
	var orders []OrderClause

	for _, clause := range splitList(orderStr) {
		parts := strings.Split(clause, "|")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid order format: %s (expected field|direction)", clause)
		}

		direction := OrderDirection(strings.ToLower(parts[1]))
		if direction != OrderAsc && direction != OrderDesc {
			return nil, fmt.Errorf("invalid order direction: %s (expected asc or desc)", parts[1])
		}

		orders = append(orders, OrderClause{Field: parts[0], Direction: direction})
	}

	return orders, nil
}

func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// ValidateFilterFields validates that all filter fields are in the allowed set
func ValidateFilterFields(filters []QueryFilter, allowedFields []string) error {
	for _, filter := range filters {
		if !contains(allowedFields, filter.Field) {
			return fmt.Errorf("invalid query field: %s (valid fields: %s)", filter.Field, strings.Join(allowedFields, ", "))
		}
	}
	return nil
}

// ValidateOrderFields validates that all order fields are in the allowed set
func ValidateOrderFields(orders []OrderClause, allowedFields []string) error {
	for _, order := range orders {
		if !contains(allowedFields, order.Field) {
			return fmt.Errorf("invalid order field: %s (valid fields: %s)", order.Field, strings.Join(allowedFields, ", "))
		}
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}
