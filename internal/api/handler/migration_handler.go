package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/martijn/vaultkeeper/internal/api/dto"
	"github.com/martijn/vaultkeeper/internal/core/domain"
	"github.com/martijn/vaultkeeper/internal/core/service"
)

type MigrationHandler struct {
	migrationService *service.MigrationService
}

func NewMigrationHandler(migrationService *service.MigrationService) *MigrationHandler {
	return &MigrationHandler{
		migrationService: migrationService,
	}
}

// GetMigrations handles GET /migrations
func (h *MigrationHandler) GetMigrations(c *gin.Context) {
	ctx := c.Request.Context()

	report, err := h.migrationService.GetMigrationStatus(ctx)
	if err != nil {
		_ = c.Error(err)
		return
	}

	stats, err := h.migrationService.GetStatistics(ctx)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.OK(dto.MigrationOverviewResponse{
		Status:     toMigrationStatusResponse(report),
		Statistics: toMigrationStatisticsResponse(stats),
	}))
}

// RunMigrations handles POST /migrations
func (h *MigrationHandler) RunMigrations(c *gin.Context) {
	ctx := c.Request.Context()

	applied, err := h.migrationService.RunPendingMigrations(ctx)
	if err != nil {
		_ = c.Error(err)
		return
	}

	report, err := h.migrationService.GetMigrationStatus(ctx)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.OK(dto.MigrationRunResponse{
		Status:  toMigrationStatusResponse(report),
		Applied: applied,
	}))
}

// RollbackMigration handles POST /migrations/:version/rollback
func (h *MigrationHandler) RollbackMigration(c *gin.Context) {
	version := c.Param("version")

	if err := h.migrationService.RollbackMigration(c.Request.Context(), version); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.OK(dto.MigrationRollbackResponse{Version: version}))
}

func toMigrationStatusResponse(report *domain.MigrationStatusReport) dto.MigrationStatusResponse {
	resp := dto.MigrationStatusResponse{
		Migrations: make([]dto.MigrationResponse, len(report.Migrations)),
		Missing:    make([]dto.MissingMigrationResponse, len(report.Missing)),
	}

	for i, m := range report.Migrations {
		item := dto.MigrationResponse{
			Version:   m.Version,
			Name:      m.Name,
			Applied:   m.Applied,
			AppliedAt: m.AppliedAt,
			Drifted:   m.Drifted,
			Error:     m.Error,
		}
		if m.Status != nil {
			status := string(*m.Status)
			item.Status = &status
		}
		resp.Migrations[i] = item
	}

	for i, r := range report.Missing {
		resp.Missing[i] = dto.MissingMigrationResponse{
			Version:   r.Version,
			Name:      r.Name,
			Status:    string(r.Status),
			AppliedAt: r.AppliedAt,
		}
	}

	return resp
}

func toMigrationStatisticsResponse(stats *domain.MigrationStatistics) dto.MigrationStatisticsResponse {
	return dto.MigrationStatisticsResponse{
		Total:              stats.Total,
		Applied:            stats.Applied,
		Pending:            stats.Pending,
		Failed:             stats.Failed,
		RolledBack:         stats.RolledBack,
		Drifted:            stats.Drifted,
		Missing:            stats.Missing,
		LastAppliedVersion: stats.LastAppliedVersion,
		LastAppliedAt:      stats.LastAppliedAt,
	}
}
