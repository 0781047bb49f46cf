package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/martijn/vaultkeeper/internal/api/util"
	"github.com/martijn/vaultkeeper/internal/core/domain"
)

const (
	defaultPage    = 1
	defaultPerPage = 25
	maxPerPage     = 500
)

// bindJSON binds the request body and pushes a bind error on failure
func bindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return false
	}
	return true
}

// parseListFilter reads the query, order, page and per_page parameters
// shared by the list endpoints
func parseListFilter(c *gin.Context, queryFields, orderFields []string) (util.ListFilter, error) {
	filter := util.ListFilter{Page: defaultPage, PerPage: defaultPerPage}

	if raw := c.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return filter, domain.NewValidationError("invalid pagination", map[string]string{
				"page": "page must be a positive integer",
			})
		}
		filter.Page = page
	}

	// per_page=0 returns every matching row on one page
	if raw := c.Query("per_page"); raw != "" {
		perPage, err := strconv.Atoi(raw)
		if err != nil || perPage < 0 || perPage > maxPerPage {
			return filter, domain.NewValidationError("invalid pagination", map[string]string{
				"per_page": "per_page must be between 0 and 500",
			})
		}
		filter.PerPage = perPage
	}

	if queryStr := c.Query("query"); queryStr != "" {
		filters, err := util.ParseQueryString(queryStr)
		if err == nil {
			err = util.ValidateFilterFields(filters, queryFields)
		}
		if err != nil {
			return filter, domain.NewValidationError("invalid query", map[string]string{"query": err.Error()})
		}
		filter.Filters = filters
	}

	if orderStr := c.Query("order"); orderStr != "" {
		orders, err := util.ParseOrderString(orderStr)
		if err == nil {
			err = util.ValidateOrderFields(orders, orderFields)
		}
		if err != nil {
			return filter, domain.NewValidationError("invalid order", map[string]string{"order": err.Error()})
		}
		filter.Order = orders
	}

	return filter, nil
}

// parseInt64Param reads a numeric path parameter
func parseInt64Param(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		return 0, domain.NewValidationError("invalid "+name, map[string]string{name: name + " must be an integer"})
	}
	return id, nil
}
