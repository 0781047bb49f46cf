package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/martijn/vaultkeeper/internal/core/domain"
	"github.com/martijn/vaultkeeper/internal/core/repository"
	"golang.org/x/crypto/bcrypt"
)

const (
	TokenExpirationHours = 1
	BcryptCost           = 10
	TokenIssuer          = "vaultkeeper"

	SubjectTypeClient = "client"
	SubjectTypeCLI    = "cli"
)

type AuthService struct {
	clientRepo   repository.ClientRepository
	jwtSecret    string
	jwtAlgorithm string
}

func NewAuthService(clientRepo repository.ClientRepository, jwtSecret, jwtAlgorithm string) *AuthService {
	return &AuthService{
		clientRepo:   clientRepo,
		jwtSecret:    jwtSecret,
		jwtAlgorithm: jwtAlgorithm,
	}
}

// HashSecret hashes a client secret using bcrypt
func (s *AuthService) HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hash), nil
}

// VerifySecret verifies a secret against a hash
func (s *AuthService) VerifySecret(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// GenerateSecret returns a random 32 byte secret, hex encoded
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// CreateClient stores a new client and returns it with the plain secret,
// which is never retrievable afterwards
func (s *AuthService) CreateClient(ctx context.Context, label string, scopes []string) (*domain.Client, string, error) {
	secret, err := GenerateSecret()
	if err != nil {
		return nil, "", err
	}
	hashed, err := s.HashSecret(secret)
	if err != nil {
		return nil, "", err
	}

	if len(scopes) == 0 {
		scopes = []string{domain.ScopeAdmin}
	}
	client := domain.NewClient(label, hashed, scopes)
	if err := s.clientRepo.Create(ctx, client); err != nil {
		return nil, "", domain.NewStoreError("failed to create client", err)
	}
	return client, secret, nil
}

func (s *AuthService) ListClients(ctx context.Context) ([]*domain.Client, error) {
	clients, err := s.clientRepo.List(ctx)
	if err != nil {
		return nil, wrapStore("failed to list clients", err)
	}
	return clients, nil
}

func (s *AuthService) DeleteClient(ctx context.Context, id string) error {
	if err := s.clientRepo.Delete(ctx, id); err != nil {
		return wrapStore("failed to delete client", err)
	}
	return nil
}

// AuthenticateClient checks client credentials and returns a JWT token
func (s *AuthService) AuthenticateClient(ctx context.Context, clientID, clientSecret string) (string, error) {
	client, err := s.clientRepo.FindByID(ctx, clientID)
	if err != nil {
		if domain.IsNotFound(err) {
			return "", domain.NewAuthorizationError("invalid client credentials")
		}
		return "", domain.NewStoreError("failed to load client", err)
	}

	if !s.VerifySecret(clientSecret, client.Secret) {
		return "", domain.NewAuthorizationError("invalid client credentials")
	}

	return s.IssueToken(clientID, SubjectTypeClient, client.Scopes)
}

// IssueToken signs a token for the given subject. The CLI uses it to mint
// tokens for local operators.
func (s *AuthService) IssueToken(subject, subjectType string, scopes []string) (string, error) {
	now := time.Now()
	expiresAt := now.Add(TokenExpirationHours * time.Hour)

	claims := TokenClaims{
		Subject:     subject,
		SubjectType: subjectType,
		Scopes:      scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    TokenIssuer,
		},
	}

	var signingMethod jwt.SigningMethod
	switch s.jwtAlgorithm {
	case "HS384":
		signingMethod = jwt.SigningMethodHS384
	case "HS512":
		signingMethod = jwt.SigningMethodHS512
	default:
		signingMethod = jwt.SigningMethodHS256
	}

	token := jwt.NewWithClaims(signingMethod, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *AuthService) ValidateToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != s.signingAlgorithm() {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	}, jwt.WithIssuer(TokenIssuer))

	if err != nil {
		return nil, domain.NewAuthorizationError("invalid token")
	}

	if claims, ok := token.Claims.(*TokenClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, domain.NewAuthorizationError("invalid token claims")
}

func (s *AuthService) signingAlgorithm() string {
	switch s.jwtAlgorithm {
	case "HS384", "HS512":
		return s.jwtAlgorithm
	default:
		return "HS256"
	}
}

// TokenClaims represents JWT claims
type TokenClaims struct {
	Subject     string   `json:"sub"`
	SubjectType string   `json:"sub_type"` // "client" or "cli"
	Scopes      []string `json:"scopes"`
	jwt.RegisteredClaims
}
