package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/steiner385/MachShop-sub017/config"
	"github.com/steiner385/MachShop-sub017/domain/entity"
	"github.com/steiner385/MachShop-sub017/domain/repository"
)

func newTestProvider(t *testing.T, mesURL, erpURL string) *HTTPProvider {
	t.Helper()
	side := func(baseURL string) config.ProviderConfig {
		return config.ProviderConfig{
			BaseURL:       baseURL,
			Timeout:       5 * time.Second,
			RatePerSecond: 100,
			Burst:         100,
		}
	}
	return NewHTTPProvider(config.ProvidersConfig{
		MES: side(mesURL),
		ERP: side(erpURL),
	}, zaptest.NewLogger(t))
}

func TestFetchRecords(t *testing.T) {
	var gotPath, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"id":"wo-1","workOrderNumber":"WO-1","quantityOrdered":50}]}`))
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL, server.URL)

	records, err := provider.FetchRecords(context.Background(), entity.EntityTypeWorkOrder, entity.SystemMES, repository.RecordFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "wo-1", records[0].ID())
	assert.Equal(t, "WO-1", records[0].StringField("workOrderNumber"))
	assert.Equal(t, "/workorders", gotPath)
	assert.Empty(t, gotQuery)
}

func TestFetchRecordsAppliesIDFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.ElementsMatch(t, []string{"wo-1", "wo-2"}, r.URL.Query()["id"])
		w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL, server.URL)
	records, err := provider.FetchRecords(context.Background(), entity.EntityTypeWorkOrder, entity.SystemMES, repository.RecordFilter{
		EntityIDs: []string{"wo-1", "wo-2"},
	})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFetchRecordsErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL, server.URL)
	ctx := context.Background()

	_, err := provider.FetchRecords(ctx, entity.EntityTypeWorkOrder, entity.SystemERP, repository.RecordFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 502")

	_, err = provider.FetchRecords(ctx, "unknown_type", entity.SystemMES, repository.RecordFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no resource path")

	_, err = provider.FetchRecords(ctx, entity.EntityTypeWorkOrder, "CRM", repository.RecordFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown side")
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := config.ProviderConfig{
		BaseURL:        server.URL,
		Timeout:        5 * time.Second,
		RatePerSecond:  1000,
		Burst:          1000,
		BreakerEnabled: true,
	}
	provider := NewHTTPProvider(config.ProvidersConfig{MES: cfg, ERP: cfg}, zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := provider.FetchRecords(ctx, entity.EntityTypeWorkOrder, entity.SystemMES, repository.RecordFilter{})
		require.Error(t, err)
	}

	// The breaker is now open; requests fail fast without reaching the server.
	_, err := provider.FetchRecords(ctx, entity.EntityTypeWorkOrder, entity.SystemMES, repository.RecordFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
}
