package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"golang.org/x/crypto/bcrypt"
)

var errDB = errors.New("db down")

var runnerColumns = []string{"id", "email", "username", "password_hash", "display_name", "club", "created_at", "updated_at"}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestRegisterAndLogin(t *testing.T) {
	mock := newMock(t)

	createdAt := time.Now().Add(-time.Minute)
	updatedAt := time.Now().Add(-time.Minute)

	mock.ExpectQuery(`INSERT INTO runners`).
		WithArgs(pgxmock.AnyArg(), "runner@example.com", "runner", pgxmock.AnyArg(), "Runner One", "OK Kampinos").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(createdAt, updatedAt))
	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	svc := NewService("test-secret", mock)
	runner, tokens, err := svc.Register(context.Background(), RegisterRequest{
		Email:       "runner@example.com",
		Username:    "runner",
		Password:    "password123",
		DisplayName: "Runner One",
		Club:        "OK Kampinos",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if runner.ID == "" || tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("expected runner and tokens")
	}

	mock.ExpectQuery(`SELECT id, email, username, password_hash, display_name, club, created_at, updated_at`).
		WithArgs("runner@example.com").
		WillReturnRows(pgxmock.NewRows(runnerColumns).
			AddRow(runner.ID, runner.Email, runner.Username, runner.PasswordHash, runner.DisplayName, runner.Club, createdAt, updatedAt))
	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WithArgs(pgxmock.AnyArg(), runner.ID, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	_, loginTokens, err := svc.Login(context.Background(), LoginRequest{Email: "runner@example.com", Password: "password123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if loginTokens.AccessToken == "" || loginTokens.RefreshToken == "" {
		t.Fatalf("expected login tokens")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := NewService("test-secret", newMock(t))

	cases := []RegisterRequest{
		{Email: "", Username: "runner", Password: "password123"},
		{Email: "not-an-email", Username: "runner", Password: "password123"},
		{Email: "runner@example.com", Username: "r", Password: "password123"},
		{Email: "runner@example.com", Username: "runner", Password: "short"},
	}
	for _, req := range cases {
		if _, _, err := svc.Register(context.Background(), req); err == nil {
			t.Fatalf("expected validation error for %+v", req)
		}
	}
}

func TestRegisterDBError(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`INSERT INTO runners`).
		WithArgs(pgxmock.AnyArg(), "runner@example.com", "runner", pgxmock.AnyArg(), "", "").
		WillReturnError(errDB)

	svc := NewService("test-secret", mock)
	_, _, err := svc.Register(context.Background(), RegisterRequest{Email: "runner@example.com", Username: "runner", Password: "password123"})
	if !errors.Is(err, errDB) {
		t.Fatalf("expected db error, got %v", err)
	}
}

func TestLoginInvalidPassword(t *testing.T) {
	mock := newMock(t)
	hash, _ := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)

	mock.ExpectQuery(`SELECT id, email, username, password_hash`).
		WithArgs("runner@example.com").
		WillReturnRows(pgxmock.NewRows(runnerColumns).
			AddRow("runner-1", "runner@example.com", "runner", string(hash), "", "", time.Now(), time.Now()))

	svc := NewService("test-secret", mock)
	_, _, err := svc.Login(context.Background(), LoginRequest{Email: "runner@example.com", Password: "wrong"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLoginUnknownRunner(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`SELECT id, email, username, password_hash`).
		WithArgs("ghost@example.com").
		WillReturnError(pgx.ErrNoRows)

	svc := NewService("test-secret", mock)
	_, _, err := svc.Login(context.Background(), LoginRequest{Email: "ghost@example.com", Password: "whatever1"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestLoginDBError(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`SELECT id, email, username, password_hash`).
		WithArgs("runner@example.com").
		WillReturnError(errDB)

	svc := NewService("test-secret", mock)
	_, _, err := svc.Login(context.Background(), LoginRequest{Email: "runner@example.com", Password: "whatever1"})
	if !errors.Is(err, errDB) {
		t.Fatalf("expected db error, got %v", err)
	}
}

func TestValidateRefreshToken(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WithArgs(pgxmock.AnyArg(), "runner-1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	svc := NewService("test-secret", mock)
	tokens, err := svc.GenerateTokens(context.Background(), "runner-1")
	if err != nil {
		t.Fatalf("generate tokens: %v", err)
	}

	mock.ExpectQuery(`SELECT runner_id, expires_at`).
		WithArgs(tokens.RefreshToken).
		WillReturnRows(pgxmock.NewRows([]string{"runner_id", "expires_at"}).AddRow("runner-1", time.Now().Add(5*time.Minute)))

	userID, err := svc.ValidateRefreshToken(context.Background(), tokens.RefreshToken)
	if err != nil {
		t.Fatalf("validate refresh: %v", err)
	}
	if userID != "runner-1" {
		t.Fatalf("unexpected runner id: %s", userID)
	}

	mock.ExpectQuery(`SELECT runner_id, expires_at`).
		WithArgs(tokens.RefreshToken).
		WillReturnRows(pgxmock.NewRows([]string{"runner_id", "expires_at"}).AddRow("runner-1", time.Now().Add(-time.Minute)))
	if _, err := svc.ValidateRefreshToken(context.Background(), tokens.RefreshToken); err == nil {
		t.Fatalf("expected expired refresh token to fail")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGenerateTokensSaveRefreshError(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WithArgs(pgxmock.AnyArg(), "runner-1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errDB)

	svc := NewService("test-secret", mock)
	if _, err := svc.GenerateTokens(context.Background(), "runner-1"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseClaimsRejectsForeignTokens(t *testing.T) {
	svc := NewService("test-secret", nil)
	token, err := svc.signToken("runner-1", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := parseClaims([]byte("other-secret"), token); err == nil {
		t.Fatalf("expected signature mismatch")
	}

	expired, _ := svc.signToken("runner-1", -time.Minute)
	if _, err := parseClaims(svc.secret, expired); err == nil {
		t.Fatalf("expected expired token to fail")
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "runner-1"})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := parseClaims(svc.secret, unsigned); err == nil {
		t.Fatalf("expected unsigned token to fail")
	}

	claims, err := parseClaims(svc.secret, token)
	if err != nil || claims.UserID != "runner-1" {
		t.Fatalf("expected valid claims, got %v", err)
	}
}

func TestGetRunner(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`FROM runners WHERE id = \$1`).
		WithArgs("runner-1").
		WillReturnRows(pgxmock.NewRows(runnerColumns).
			AddRow("runner-1", "runner@example.com", "runner", "hash", "Runner One", "", time.Now(), time.Now()))

	svc := NewService("test-secret", mock)
	runner, err := svc.GetRunner(context.Background(), "runner-1")
	if err != nil || runner.DisplayName != "Runner One" {
		t.Fatalf("get runner: %v", err)
	}
}
