package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/health"
	"github.com/vladislavdragonenkov/commerce/internal/storage/memory"
)

func findFreeAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	addr := lis.Addr().String()
	_ = lis.Close()
	return addr
}

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.HTTPAddr = findFreeAddr(t)
	cfg.GRPCAddr = findFreeAddr(t)
	cfg.MetricsAddr = findFreeAddr(t)
	return cfg
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "sqlite"

	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestNew_ServesCartOverHTTP(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), log.WithField("test", "app"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	form := url.Values{"variation_id": {"mug"}, "quantity": {"3"}}
	req := httptest.NewRequest(http.MethodPost, "/cart/add", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	a.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		StoreID string       `json:"store_id"`
		Count   int          `json:"count"`
		Total   domain.Price `json:"total"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "default", body.StoreID)
	assert.Equal(t, 3, body.Count)
	assert.Equal(t, "25.5", body.Total.Number.String())

	resp := a.health.Run(context.Background())
	assert.Equal(t, health.StatusHealthy, resp.Status)
	require.Len(t, resp.Checks, 1)
	assert.Equal(t, "outbox", resp.Checks[0].Name)
}

func TestNew_TestPaymentGateway(t *testing.T) {
	cfg := testConfig(t)
	cfg.TestPaymentGateway = true

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.Equal(t, []string{"manual", "test"}, a.services.Gateways.IDs())
	def, ok := a.services.Gateways.Default()
	require.True(t, ok)
	assert.Equal(t, "manual", def.ID())
}

func TestOutboxBacklogProbe(t *testing.T) {
	repo := memory.NewOutboxRepository()
	probe := outboxBacklogProbe(repo, 1)
	ctx := context.Background()

	require.NoError(t, probe(ctx))
	for i := range 2 {
		_, err := repo.Enqueue(ctx, domain.OutboxMessage{
			AggregateID:   fmt.Sprintf("order-%d", i),
			AggregateType: "order",
			EventType:     domain.EventOrderPlaced,
			Payload:       []byte(`{}`),
		})
		require.NoError(t, err)
	}
	err := probe(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backlog 2")
}

func TestStartMetricsServer_Endpoints(t *testing.T) {
	addr := findFreeAddr(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := health.NewHandler()
	checks.Critical("db", func(context.Context) error { return nil })
	srv := startMetricsServer(ctx, addr, log.WithField("test", "http"), checks)
	require.NotNil(t, srv)

	get := func(path string) (int, string) {
		t.Helper()
		var (
			resp *http.Response
			err  error
		)
		for range 20 {
			resp, err = http.Get("http://" + addr + path)
			if err == nil {
				break
			}
			time.Sleep(50 * time.Millisecond)
		}
		require.NoError(t, err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	code, body := get("/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, body)

	code, body = get("/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"status":"healthy"`)

	code, body = get("/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", body)

	code, body = get("/livez")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)
}

func TestStartMetricsServer_EmptyAddr(t *testing.T) {
	if srv := startMetricsServer(context.Background(), "", log.WithField("test", "http"), health.NewHandler()); srv != nil {
		t.Fatal("expected no server without address")
	}
	shutdownHTTP(nil, log.WithField("test", "http"))
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg) }()

	var (
		resp *http.Response
		err  error
	)
	for range 40 {
		resp, err = http.Get("http://" + cfg.HTTPAddr + "/cart")
		if err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "no cart yet")

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled), "unexpected error: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRun_FailsOnBusyGRPCPort(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	cfg := testConfig(t)
	cfg.GRPCAddr = lis.Addr().String()

	err = Run(context.Background(), cfg)
	require.Error(t, err)
}
