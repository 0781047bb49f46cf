package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/martijn/vaultkeeper/internal/api/dto"
	"github.com/martijn/vaultkeeper/internal/core/domain"
	"github.com/martijn/vaultkeeper/internal/core/repository"
	"github.com/martijn/vaultkeeper/internal/core/service"
)

// Allowed fields for operation queries and ordering
var (
	operationQueryFields = []string{"id", "command", "command_id", "status", "start_time", "end_time", "type"}
	operationOrderFields = []string{"id", "start_time", "end_time", "status"}
)

type OperationHandler struct {
	operationService *service.OperationService
}

func NewOperationHandler(operationService *service.OperationService) *OperationHandler {
	return &OperationHandler{
		operationService: operationService,
	}
}

// ListOperations handles GET /operations
func (h *OperationHandler) ListOperations(c *gin.Context) {
	ctx := c.Request.Context()

	listFilter, err := parseListFilter(c, operationQueryFields, operationOrderFields)
	if err != nil {
		_ = c.Error(err)
		return
	}
	filter := repository.OperationFilter{ListFilter: listFilter}

	operations, err := h.operationService.ListOperations(ctx, filter)
	if err != nil {
		_ = c.Error(err)
		return
	}

	count, err := h.operationService.CountOperations(ctx, filter)
	if err != nil {
		_ = c.Error(err)
		return
	}

	response := dto.OperationListResponse{
		Items:      make([]dto.OperationResponse, len(operations)),
		Pagination: dto.NewPaginationInfo(count, filter.Page, filter.PerPage),
	}
	for i, operation := range operations {
		response.Items[i] = toOperationResponse(operation)
	}

	c.JSON(http.StatusOK, dto.OK(response))
}

// GetOperation handles GET /operations/:id
func (h *OperationHandler) GetOperation(c *gin.Context) {
	id, err := parseInt64Param(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	operation, err := h.operationService.GetOperation(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.OK(toOperationResponse(operation)))
}

// GetOperationByCommandID handles GET /status/:command_id
func (h *OperationHandler) GetOperationByCommandID(c *gin.Context) {
	operation, err := h.operationService.GetOperationByCommandID(c.Request.Context(), c.Param("command_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.OK(toOperationResponse(operation)))
}

func toOperationResponse(operation *domain.Operation) dto.OperationResponse {
	response := dto.OperationResponse{
		ID:        operation.ID,
		CommandID: operation.CommandID,
		Command:   operation.Command,
		Status:    string(operation.Status),
		Output:    operation.Output,
		Error:     operation.Error,
		StartTime: operation.StartTime,
		EndTime:   operation.EndTime,
		Type:      string(operation.Type),
		Args:      operation.Args,
		Link:      fmt.Sprintf("/status/%s", operation.CommandID),
	}

	// Backup and restore operations carry the id of the resource they touched
	if id, ok := operation.Args["id"].(string); ok {
		response.ResourceID = &id
	} else if id, ok := operation.Args["backup_id"].(string); ok {
		response.ResourceID = &id
	}

	return response
}
