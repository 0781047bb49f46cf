package util

// ListFilter carries the parsed query, order and pagination of a list request.
// PerPage 0 disables pagination.
type ListFilter struct {
	Filters []QueryFilter
	Order   []OrderClause
	Page    int
	PerPage int
}
