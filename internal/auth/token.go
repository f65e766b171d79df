package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"parcel-tracking/internal/config"
	"parcel-tracking/internal/models"

	"github.com/google/uuid"
)

// Identity представляет аутентифицированного пользователя
type Identity struct {
	UserID uuid.UUID
	Role   models.Role
}

// TokenClaims представляет данные, закодированные в токене
type TokenClaims struct {
	UserID    uuid.UUID   `json:"user_id"`
	Role      models.Role `json:"role"`
	IssuedAt  time.Time   `json:"issued_at"`
	ExpiresAt time.Time   `json:"expires_at"`
	Signature string      `json:"signature"`
}

// TokenService проверяет и выпускает bearer токены.
// Выпуск токенов принадлежит внешнему сервису идентификации; здесь Mint
// используется только для разработки и тестов.
type TokenService struct {
	secret   []byte
	tokenTTL time.Duration
}

// NewTokenService создает новый сервис токенов
func NewTokenService(cfg *config.AuthConfig) *TokenService {
	return &TokenService{
		secret:   []byte(cfg.Secret),
		tokenTTL: time.Duration(cfg.TokenTTL) * time.Second,
	}
}

// Mint выпускает подписанный токен для пользователя
func (s *TokenService) Mint(userID uuid.UUID, role models.Role) (string, error) {
	now := time.Now()

	claims := TokenClaims{
		UserID:    userID,
		Role:      role,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.tokenTTL),
	}
	claims.Signature = s.sign(claims)

	data, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to encode claims: %w", err)
	}

	return base64.URLEncoding.EncodeToString(data), nil
}

// Verify проверяет подпись и срок действия токена и возвращает идентичность
func (s *TokenService) Verify(token string) (*Identity, error) {
	data, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("malformed token: %w", err)
	}

	var claims TokenClaims
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, fmt.Errorf("failed to decode claims: %w", err)
	}

	if time.Now().After(claims.ExpiresAt) {
		return nil, fmt.Errorf("token expired")
	}

	expected := s.sign(claims)
	if !hmac.Equal([]byte(claims.Signature), []byte(expected)) {
		return nil, fmt.Errorf("invalid token signature")
	}

	return &Identity{UserID: claims.UserID, Role: claims.Role}, nil
}

// sign вычисляет HMAC-SHA256 подпись по значимым полям claims
func (s *TokenService) sign(claims TokenClaims) string {
	payload := fmt.Sprintf("%s:%s:%d:%d",
		claims.UserID,
		claims.Role,
		claims.IssuedAt.Unix(),
		claims.ExpiresAt.Unix(),
	)

	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(payload))

	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}
