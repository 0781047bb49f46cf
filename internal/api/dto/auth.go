package dto

import "time"

// TokenRequest is the OAuth2 client_credentials grant. Its fields keep the
// snake_case names OAuth2 clients send.
type TokenRequest struct {
	GrantType    string `json:"grant_type" binding:"required,oneof=client_credentials"`
	ClientID     string `json:"client_id" binding:"required"`
	ClientSecret string `json:"client_secret" binding:"required"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"` // seconds
}

type CreateClientRequest struct {
	Label  string   `json:"label" binding:"required,max=100"`
	Scopes []string `json:"scopes" binding:"omitempty,dive,oneof=admin"`
}

type ClientResponse struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Scopes    []string  `json:"scopes"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ClientCreateResponse is the only response that carries the plain secret
type ClientCreateResponse struct {
	ClientResponse
	Secret string `json:"secret"`
}

type ClientListResponse struct {
	Items      []ClientResponse `json:"items"`
	Pagination PaginationInfo   `json:"pagination"`
}
