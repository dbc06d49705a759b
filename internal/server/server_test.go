package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/jakubwesta/mobile-orienteering-sub001/internal/auth"
	"github.com/jakubwesta/mobile-orienteering-sub001/internal/checkpoint"
	"github.com/jakubwesta/mobile-orienteering-sub001/internal/config"
	"github.com/jakubwesta/mobile-orienteering-sub001/internal/location"
	"github.com/jakubwesta/mobile-orienteering-sub001/internal/run"
)

func testConfig() config.Config {
	return config.Config{
		JWTSecret:          "secret",
		ServerPort:         ":0",
		SmoothingFactor:    0.3,
		MaxAccuracyM:       30,
		TeleportThresholdM: 100,
		CheckpointRadiusM:  10,
		FixChannel:         "run:fixes",
		StateChannel:       "run:state",
	}
}

func bearer(t *testing.T, secret string) string {
	t.Helper()
	claims := auth.Claims{
		UserID: "runner-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return "Bearer " + token
}

func TestHealthRoute(t *testing.T) {
	s := NewServer(testConfig(), nil, nil)
	defer s.Close()

	req := httptest.NewRequest("GET", "/health", nil)
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 status")
	}
}

func TestEngineConfig(t *testing.T) {
	cfg := testConfig()
	cfg.TickInterval = 2 * time.Second
	rc := EngineConfig(cfg)
	if rc.Filter.SmoothingFactor != 0.3 || rc.ArrivalRadiusM != 10 || rc.TickInterval != 2*time.Second {
		t.Fatalf("unexpected engine config %+v", rc)
	}
}

func TestRunRoutesRequireToken(t *testing.T) {
	s := NewServer(testConfig(), nil, nil)
	defer s.Close()

	req := httptest.NewRequest(http.MethodPost, "/run/start", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := s.App.Test(req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %d", resp.StatusCode)
	}

	resp, _ = s.App.Test(httptest.NewRequest(http.MethodGet, "/run/state", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("state must be readable, got %d", resp.StatusCode)
	}
}

func TestFixesFromRedisBridge(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s := NewServer(testConfig(), nil, rdb)
	defer s.Close()

	course, _ := json.Marshal(run.Course{
		MapName: "Bridge",
		Checkpoints: []checkpoint.Checkpoint{
			{ID: "cp-1", Lat: 52.0, Lng: 21.0},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/run/start", bytes.NewReader(course))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, "secret"))
	resp, err := s.App.Test(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("start status: %v %d", err, resp.StatusCode)
	}

	bridge := location.NewRedisSource(rdb, "run:fixes")
	deadline := time.Now().Add(2 * time.Second)
	for !s.Engine.Latest().Completed() {
		// the engine subscribes asynchronously; keep sending until it listens
		if err := bridge.Publish(t.Context(), location.RawFix{Lat: 52.0, Lng: 21.0, AccuracyM: 3, Time: time.Now()}); err != nil {
			t.Fatalf("publish: %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatalf("fix never reached the engine")
		}
		time.Sleep(10 * time.Millisecond)
	}

	remote := run.NewRemoteClient(rdb, "run:state")
	deadline = time.Now().Add(2 * time.Second)
	for {
		active, err := remote.IsActive(t.Context())
		if err != nil {
			t.Fatalf("remote is active: %v", err)
		}
		if active {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("state never mirrored")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
