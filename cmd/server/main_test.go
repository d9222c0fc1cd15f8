package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/plantbox/plantbox-api/internal/config"
	"github.com/plantbox/plantbox-api/internal/docstore"
	"github.com/plantbox/plantbox-api/internal/notify"
	"github.com/plantbox/plantbox-api/internal/service"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap/zaptest"
)

func TestApp_Wiring(t *testing.T) {
	t.Setenv("STORE_URI", "memory://")
	t.Setenv("SERVICE_PORT", "0")
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("SMTP_SERVER", "")
	t.Setenv("INGEST_RATE_PER_SEC", "")

	var (
		router   *gin.Engine
		store    docstore.Store
		notifier notify.Notifier
	)
	app := fxtest.New(t,
		options(),
		fx.NopLogger,
		fx.Populate(&router, &store, &notifier),
	)
	app.RequireStart()
	defer app.RequireStop()

	if _, ok := store.(*docstore.Memory); !ok {
		t.Errorf("Expected memory store, got %T", store)
	}
	if notifier.Enabled() {
		t.Error("Expected notifier to be disabled without SMTP or broker settings")
	}

	body, _ := json.Marshal(map[string]any{
		"temperature_c":   25.0,
		"water_level_pct": 65.0,
		"flow_rate_lpm":   1.0,
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/devices/PlantBox-492/telemetry", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res service.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if res.Status != service.StatusOK {
		t.Errorf("Expected status ok, got %s", res.Status)
	}

	// ingest is unthrottled unless INGEST_RATE_PER_SEC is set
	for i := 0; i < 60; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/telemetry", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("reading %d: expected 200, got %d", i, w.Code)
		}
	}
}

func TestProvideRateLimiter_OptIn(t *testing.T) {
	logger := zaptest.NewLogger(t)

	if l := ProvideRateLimiter(fxtest.NewLifecycle(t), &config.Config{}, logger); l != nil {
		t.Error("Expected no limiter without INGEST_RATE_PER_SEC")
	}

	lc := fxtest.NewLifecycle(t)
	cfg := &config.Config{Ingest: config.IngestConfig{RatePerSecond: 5, Burst: 10}}
	if l := ProvideRateLimiter(lc, cfg, logger); l == nil {
		t.Fatal("Expected a limiter when throttling is configured")
	}
	lc.RequireStart()
	lc.RequireStop()
}

func TestProvideStore_Selection(t *testing.T) {
	logger := zaptest.NewLogger(t)

	cases := map[string]string{
		"":                 "docstore.Noop",
		"memory://":        "*docstore.Memory",
		"redis://cache:79": "docstore.Noop",
	}
	for uri, want := range cases {
		lc := fxtest.NewLifecycle(t)
		store, err := ProvideStore(lc, logger, &config.Config{Store: config.StoreConfig{URI: uri}})
		if err != nil {
			t.Fatalf("%q: unexpected error %v", uri, err)
		}
		got := ""
		switch store.(type) {
		case docstore.Noop:
			got = "docstore.Noop"
		case *docstore.Memory:
			got = "*docstore.Memory"
		}
		if got != want {
			t.Errorf("%q: expected %s, got %T", uri, want, store)
		}
	}
}
