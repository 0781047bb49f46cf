package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/martijn/vaultkeeper/internal/api/dto"
	"github.com/martijn/vaultkeeper/internal/core/domain"
	"github.com/martijn/vaultkeeper/internal/core/service"
)

type ClientHandler struct {
	authService *service.AuthService
}

func NewClientHandler(authService *service.AuthService) *ClientHandler {
	return &ClientHandler{
		authService: authService,
	}
}

// CreateClient handles POST /clients
func (h *ClientHandler) CreateClient(c *gin.Context) {
	var req dto.CreateClientRequest
	if !bindJSON(c, &req) {
		return
	}

	client, secret, err := h.authService.CreateClient(c.Request.Context(), req.Label, req.Scopes)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, dto.OK(dto.ClientCreateResponse{
		ClientResponse: toClientResponse(client),
		Secret:         secret,
	}))
}

// ListClients handles GET /clients
func (h *ClientHandler) ListClients(c *gin.Context) {
	clients, err := h.authService.ListClients(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	total := len(clients)
	response := dto.ClientListResponse{
		Items:      make([]dto.ClientResponse, total),
		Pagination: dto.NewPaginationInfo(total, 1, total),
	}
	for i, client := range clients {
		response.Items[i] = toClientResponse(client)
	}

	c.JSON(http.StatusOK, dto.OK(response))
}

// DeleteClient handles DELETE /clients/:id
func (h *ClientHandler) DeleteClient(c *gin.Context) {
	if err := h.authService.DeleteClient(c.Request.Context(), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

func toClientResponse(client *domain.Client) dto.ClientResponse {
	return dto.ClientResponse{
		ID:        client.ID,
		Label:     client.Label,
		Scopes:    client.Scopes,
		CreatedAt: client.CreatedAt,
		UpdatedAt: client.UpdatedAt,
	}
}
