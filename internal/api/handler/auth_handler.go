package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/martijn/vaultkeeper/internal/api/dto"
	"github.com/martijn/vaultkeeper/internal/core/service"
)

type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// Token handles POST /auth/token with the client_credentials grant
func (h *AuthHandler) Token(c *gin.Context) {
	var req dto.TokenRequest
	if !bindJSON(c, &req) {
		return
	}

	token, err := h.authService.AuthenticateClient(c.Request.Context(), req.ClientID, req.ClientSecret)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.OK(dto.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   service.TokenExpirationHours * 3600,
	}))
}
