package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/martijn/vaultkeeper/internal/api/dto"
	"github.com/martijn/vaultkeeper/internal/core/domain"
	"github.com/martijn/vaultkeeper/internal/core/service"
)

type BackupHandler struct {
	backupService *service.BackupService
}

func NewBackupHandler(backupService *service.BackupService) *BackupHandler {
	return &BackupHandler{
		backupService: backupService,
	}
}

// CreateBackup handles POST /backups
func (h *BackupHandler) CreateBackup(c *gin.Context) {
	var req dto.CreateBackupRequest
	if !bindJSON(c, &req) {
		return
	}

	backup, err := h.backupService.CreateBackup(c.Request.Context(), service.BackupOptions{
		Type:               domain.BackupType(req.Type),
		Description:        req.Description,
		CompressionEnabled: req.CompressionEnabled,
		Since:              req.Since,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, dto.OK(dto.BackupDetailResponse{Backup: toBackupResponse(backup)}))
}

// ListBackups handles GET /backups
func (h *BackupHandler) ListBackups(c *gin.Context) {
	ctx := c.Request.Context()

	filter, err := service.ParseBackupFilter(c.Query("type"), c.Query("status"), c.Query("limit"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	backups, err := h.backupService.ListBackups(ctx, filter)
	if err != nil {
		_ = c.Error(err)
		return
	}

	stats, err := h.backupService.GetBackupStatistics(ctx)
	if err != nil {
		_ = c.Error(err)
		return
	}

	response := dto.BackupListResponse{
		Backups:    make([]dto.BackupResponse, len(backups)),
		Statistics: toBackupStatisticsResponse(stats),
		Config:     toBackupConfigResponse(h.backupService.GetBackupConfig()),
	}
	for i, backup := range backups {
		response.Backups[i] = toBackupResponse(backup)
	}

	c.JSON(http.StatusOK, dto.OK(response))
}

// GetBackup handles GET /backups/:id
func (h *BackupHandler) GetBackup(c *gin.Context) {
	ctx := c.Request.Context()

	backup, err := h.backupService.GetBackupMetadata(ctx, c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	response := dto.BackupDetailResponse{Backup: toBackupResponse(backup)}

	// Incrementals also report the backups a restore would replay
	if backup.FromBackupID != nil {
		chain, err := h.backupService.GetBackupChain(ctx, backup.ID)
		if err != nil {
			_ = c.Error(err)
			return
		}
		response.Chain = make([]dto.BackupResponse, len(chain))
		for i, link := range chain {
			response.Chain[i] = toBackupResponse(link)
		}
	}

	c.JSON(http.StatusOK, dto.OK(response))
}

func toBackupResponse(backup *domain.Backup) dto.BackupResponse {
	tables := backup.Tables
	if tables == nil {
		tables = []string{}
	}

	response := dto.BackupResponse{
		ID:                 backup.ID,
		Type:               string(backup.Type),
		Status:             string(backup.Status),
		Description:        backup.Description,
		CompressionEnabled: backup.CompressionEnabled,
		Compression:        string(backup.Compression),
		FromBackupID:       backup.FromBackupID,
		Since:              backup.Since,
		Tables:             tables,
		StartTime:          backup.StartTime,
		EndTime:            backup.EndTime,
		SizeBytes:          backup.SizeBytes,
		Checksum:           backup.Checksum,
		Error:              backup.Error,
		OperationID:        backup.OperationID,
	}

	if backup.OperationID != nil {
		link := fmt.Sprintf("/operations/%d", *backup.OperationID)
		response.Link = &link
	}

	return response
}

func toBackupStatisticsResponse(stats *domain.BackupStatistics) dto.BackupStatisticsResponse {
	response := dto.BackupStatisticsResponse{
		Total:             stats.Total,
		ByStatus:          make(map[string]int, len(stats.ByStatus)),
		ByType:            make(map[string]int, len(stats.ByType)),
		TotalSizeBytes:    stats.TotalSizeBytes,
		AverageSizeBytes:  stats.AverageSizeBytes,
		SuccessRate:       stats.SuccessRate,
		LastCompletedTime: stats.LastCompletedTime,
	}
	for status, n := range stats.ByStatus {
		response.ByStatus[string(status)] = n
	}
	for backupType, n := range stats.ByType {
		response.ByType[string(backupType)] = n
	}
	return response
}

func toBackupConfigResponse(cfg domain.BackupConfig) dto.BackupConfigResponse {
	return dto.BackupConfigResponse{
		RetentionDays:              cfg.RetentionDays,
		MaxBackups:                 cfg.MaxBackups,
		CompressionEnabled:         cfg.CompressionEnabled,
		CompressionAlgorithm:       string(cfg.CompressionAlgorithm),
		StorageBackend:             cfg.StorageBackend,
		ChangeColumn:               cfg.ChangeColumn,
		IncrementalFallbackEnabled: cfg.IncrementalFallbackEnabled,
		IncrementalFallbackWindow:  cfg.IncrementalFallbackWindow.String(),
	}
}
