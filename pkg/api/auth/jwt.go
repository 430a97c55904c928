package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Common errors for JWT operations.
var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrExpiredToken        = errors.New("token has expired")
	ErrInvalidTokenType    = errors.New("invalid token type")
	ErrTokenSigningFailed  = errors.New("failed to sign token")
	ErrInvalidSecretLength = errors.New("JWT secret must be at least 32 characters")
)

// JWTConfig holds configuration for JWT token generation.
type JWTConfig struct {
	// Secret is the HMAC signing key. Must be at least 32 characters.
	Secret string

	// Default: "dittocdn"
	Issuer string

	// Default: 15 minutes.
	AccessTokenDuration time.Duration

	// Default: 7 days.
	RefreshTokenDuration time.Duration
}

// JWTService handles JWT token generation and validation.
type JWTService struct {
	config JWTConfig
	now    func() time.Time
}

// TokenPair contains both access and refresh tokens.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// NewJWTService creates a new JWT service with the given configuration.
func NewJWTService(config JWTConfig) (*JWTService, error) {
	if len(config.Secret) < 32 {
		return nil, ErrInvalidSecretLength
	}
	if config.Issuer == "" {
		config.Issuer = "dittocdn"
	}
	if config.AccessTokenDuration == 0 {
		config.AccessTokenDuration = 15 * time.Minute
	}
	if config.RefreshTokenDuration == 0 {
		config.RefreshTokenDuration = 7 * 24 * time.Hour
	}
	return &JWTService{config: config, now: time.Now}, nil
}

// GenerateTokenPair issues an access/refresh pair for username.
func (s *JWTService) GenerateTokenPair(username string) (*TokenPair, error) {
	now := s.now()
	accessExpiry := now.Add(s.config.AccessTokenDuration)

	accessToken, err := s.generateToken(username, TokenTypeAccess, now, accessExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refreshToken, err := s.generateToken(username, TokenTypeRefresh, now, now.Add(s.config.RefreshTokenDuration))
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.config.AccessTokenDuration.Seconds()),
		ExpiresAt:    accessExpiry,
	}, nil
}

func (s *JWTService) generateToken(username string, tokenType TokenType, issuedAt, expiresAt time.Time) (string, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.config.Issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Username:  username,
		TokenType: tokenType,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", ErrTokenSigningFailed
	}
	return signed, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, jwt.WithIssuer(s.config.Issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateAccessToken validates a token and ensures it's an access token.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if !claims.IsAccessToken() {
		return nil, ErrInvalidTokenType
	}
	return claims, nil
}

// ValidateRefreshToken validates a token and ensures it's a refresh token.
func (s *JWTService) ValidateRefreshToken(tokenString string) (*Claims, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if !claims.IsRefreshToken() {
		return nil, ErrInvalidTokenType
	}
	return claims, nil
}
