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

// Allowed fields for restore queries and ordering
var (
	restoreQueryFields = []string{"id", "backup_id", "restore_type", "target", "status", "pre_restore_backup_id", "start_time", "end_time", "operation_id"}
	restoreOrderFields = []string{"id", "start_time", "end_time", "status"}
)

type RestoreHandler struct {
	restoreService *service.RestoreService
}

func NewRestoreHandler(restoreService *service.RestoreService) *RestoreHandler {
	return &RestoreHandler{
		restoreService: restoreService,
	}
}

// CreateRestore handles POST /backups/:id/restore
func (h *RestoreHandler) CreateRestore(c *gin.Context) {
	var req dto.CreateRestoreRequest
	if !bindJSON(c, &req) {
		return
	}

	backupID := c.Param("id")
	restore, err := h.restoreService.RestoreFromBackup(c.Request.Context(), &domain.RestoreRequest{
		BackupID:                  backupID,
		RestoreType:               domain.RestoreType(req.RestoreType),
		SelectedTables:            req.SelectedTables,
		ValidateBeforeRestore:     req.ValidateBeforeRestore,
		CreateBackupBeforeRestore: req.CreateBackupBeforeRestore,
		TargetDatabase:            req.TargetDatabase,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.OK(dto.RestoreCreatedResponse{
		BackupID: backupID,
		Message:  fmt.Sprintf("restored %d table(s) from backup %s into %s", len(restore.AppliedTables), backupID, restore.Target),
		Restore:  toRestoreResponse(restore),
	}))
}

// ListRestores handles GET /restores
func (h *RestoreHandler) ListRestores(c *gin.Context) {
	ctx := c.Request.Context()

	listFilter, err := parseListFilter(c, restoreQueryFields, restoreOrderFields)
	if err != nil {
		_ = c.Error(err)
		return
	}
	filter := repository.RestoreFilter{ListFilter: listFilter}

	restores, err := h.restoreService.ListRestores(ctx, filter)
	if err != nil {
		_ = c.Error(err)
		return
	}

	count, err := h.restoreService.CountRestores(ctx, filter)
	if err != nil {
		_ = c.Error(err)
		return
	}

	response := dto.RestoreListResponse{
		Items:      make([]dto.RestoreResponse, len(restores)),
		Pagination: dto.NewPaginationInfo(count, filter.Page, filter.PerPage),
	}
	for i, restore := range restores {
		response.Items[i] = toRestoreResponse(restore)
	}

	c.JSON(http.StatusOK, dto.OK(response))
}

// GetRestore handles GET /restores/:id
func (h *RestoreHandler) GetRestore(c *gin.Context) {
	id, err := parseInt64Param(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	restore, err := h.restoreService.GetRestore(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.OK(toRestoreResponse(restore)))
}

func toRestoreResponse(restore *domain.Restore) dto.RestoreResponse {
	selected := restore.SelectedTables
	if selected == nil {
		selected = []string{}
	}
	applied := restore.AppliedTables
	if applied == nil {
		applied = []string{}
	}

	return dto.RestoreResponse{
		ID:                 restore.ID,
		BackupID:           restore.BackupID,
		RestoreType:        string(restore.RestoreType),
		SelectedTables:     selected,
		Target:             restore.Target,
		PreRestoreBackupID: restore.PreRestoreBackupID,
		Status:             string(restore.Status),
		AppliedTables:      applied,
		Error:              restore.Error,
		StartTime:          restore.StartTime,
		EndTime:            restore.EndTime,
		OperationID:        restore.OperationID,
	}
}
