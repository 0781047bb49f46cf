package dto

// Response is the envelope of every API response
type Response struct {
	Success bool              `json:"success"`
	Data    interface{}       `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func OK(data interface{}) Response {
	return Response{Success: true, Data: data}
}

// Fail builds an error envelope; label is a short status text such as "Not Found"
func Fail(label, message string, fields map[string]string) Response {
	return Response{Error: label, Message: message, Fields: fields}
}

// PaginationInfo contains pagination metadata
type PaginationInfo struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	TotalPages int `json:"totalPages"`
}

// NewPaginationInfo computes the page count; perPage 0 means a single page
func NewPaginationInfo(total, page, perPage int) PaginationInfo {
	totalPages := 1
	if perPage > 0 {
		totalPages = (total + perPage - 1) / perPage
	}
	return PaginationInfo{
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	}
}
