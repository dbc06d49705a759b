package auth

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/jakubwesta/mobile-orienteering-sub001/internal/db"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Service struct {
	secret   []byte
	db       db.Querier
	validate *validator.Validate
}

type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

func NewService(secret string, q db.Querier) *Service {
	return &Service{
		secret:   []byte(secret),
		db:       q,
		validate: validator.New(),
	}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (Runner, TokenResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return Runner{}, TokenResponse{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return Runner{}, TokenResponse{}, err
	}

	runner := Runner{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: string(hash),
		DisplayName:  req.DisplayName,
		Club:         req.Club,
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO runners (id, email, username, password_hash, display_name, club)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at
	`, runner.ID, runner.Email, runner.Username, runner.PasswordHash, runner.DisplayName, runner.Club)
	if err := row.Scan(&runner.CreatedAt, &runner.UpdatedAt); err != nil {
		return Runner{}, TokenResponse{}, err
	}

	tokens, err := s.GenerateTokens(ctx, runner.ID)
	if err != nil {
		return Runner{}, TokenResponse{}, err
	}
	return runner, tokens, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (Runner, TokenResponse, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, email, username, password_hash, display_name, club, created_at, updated_at
		FROM runners WHERE email = $1
	`, req.Email)

	runner, err := scanRunner(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Runner{}, TokenResponse{}, ErrInvalidCredentials
	}
	if err != nil {
		return Runner{}, TokenResponse{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(runner.PasswordHash), []byte(req.Password)); err != nil {
		return Runner{}, TokenResponse{}, ErrInvalidCredentials
	}

	tokens, err := s.GenerateTokens(ctx, runner.ID)
	if err != nil {
		return Runner{}, TokenResponse{}, err
	}
	return runner, tokens, nil
}

func (s *Service) GetRunner(ctx context.Context, id string) (Runner, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, email, username, password_hash, display_name, club, created_at, updated_at
		FROM runners WHERE id = $1
	`, id)
	return scanRunner(row)
}

func scanRunner(row interface{ Scan(...any) error }) (Runner, error) {
	var r Runner
	err := row.Scan(&r.ID, &r.Email, &r.Username, &r.PasswordHash, &r.DisplayName, &r.Club, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (s *Service) GenerateTokens(ctx context.Context, userID string) (TokenResponse, error) {
	access, err := s.signToken(userID, accessTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	refresh, err := s.signToken(userID, refreshTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	if err := s.saveRefreshToken(ctx, refresh, userID, refreshTokenTTL); err != nil {
		return TokenResponse{}, err
	}

	return TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessTokenTTL.Seconds()),
	}, nil
}

func (s *Service) ValidateRefreshToken(ctx context.Context, token string) (string, error) {
	claims, err := parseClaims(s.secret, token)
	if err != nil {
		return "", err
	}

	userID, expiresAt, err := s.lookupRefreshToken(ctx, token)
	if err != nil || userID != claims.UserID || time.Now().After(expiresAt) {
		return "", errors.New("refresh token invalid")
	}
	return claims.UserID, nil
}

func (s *Service) signToken(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func parseClaims(secret []byte, token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return nil, errors.New("token invalid")
	}
	return claims, nil
}

func (s *Service) saveRefreshToken(ctx context.Context, token, userID string, ttl time.Duration) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO refresh_tokens (id, runner_id, token, expires_at)
		VALUES ($1,$2,$3,$4)
	`, uuid.NewString(), userID, token, time.Now().Add(ttl))
	return err
}

func (s *Service) lookupRefreshToken(ctx context.Context, token string) (string, time.Time, error) {
	row := s.db.QueryRow(ctx, `
		SELECT runner_id, expires_at
		FROM refresh_tokens
		WHERE token = $1 AND revoked_at IS NULL
	`, token)
	var userID string
	var expiresAt time.Time
	if err := row.Scan(&userID, &expiresAt); err != nil {
		return "", time.Time{}, err
	}
	return userID, expiresAt, nil
}
