// Package provider implements the record-provider boundary over the MES and
// ERP HTTP APIs. Each side gets its own rate limiter and circuit breaker so a
// degraded system cannot be hammered into the ground by reconciliation runs.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/steiner385/MachShop-sub017/config"
	"github.com/steiner385/MachShop-sub017/domain/entity"
	"github.com/steiner385/MachShop-sub017/domain/repository"
)

// Resource paths per entity type, shared by both sides' APIs.
var resourcePaths = map[entity.EntityType]string{
	entity.EntityTypeSupplier:      "/suppliers",
	entity.EntityTypePurchaseOrder: "/purchaseorders",
	entity.EntityTypeWorkOrder:     "/workorders",
	entity.EntityTypeInventory:     "/inventory",
}

// HTTPProvider fetches record snapshots from the MES and ERP APIs.
type HTTPProvider struct {
	sides  map[entity.System]*sideClient
	logger *zap.Logger
}

type sideClient struct {
	cfg     config.ProviderConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPProvider creates a provider over the configured MES and ERP
// endpoints.
func NewHTTPProvider(cfg config.ProvidersConfig, logger *zap.Logger) *HTTPProvider {
	return &HTTPProvider{
		sides: map[entity.System]*sideClient{
			entity.SystemMES: newSideClient("mes-provider", cfg.MES, logger),
			entity.SystemERP: newSideClient("erp-provider", cfg.ERP, logger),
		},
		logger: logger,
	}
}

func newSideClient(name string, cfg config.ProviderConfig, logger *zap.Logger) *sideClient {
	sc := &sideClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
	}
	if cfg.BreakerEnabled {
		sc.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(n string, from, to gobreaker.State) {
				logger.Warn("Provider circuit breaker state changed",
					zap.String("provider", n),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		})
	}
	return sc
}

// FetchRecords retrieves the full (or filtered) population for one entity
// type from one side. The response is expected to be a JSON object with a
// "data" array of flat records.
func (p *HTTPProvider) FetchRecords(ctx context.Context, entityType entity.EntityType, side entity.System, filter repository.RecordFilter) ([]entity.Record, error) {
	sc, ok := p.sides[side]
	if !ok {
		return nil, errors.Errorf("unknown side %q", side)
	}
	path, ok := resourcePaths[entityType]
	if !ok {
		return nil, errors.Errorf("no resource path for entity type %q", entityType)
	}

	if err := sc.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limiter wait aborted")
	}

	fetch := func() (interface{}, error) {
		return sc.fetch(ctx, path, filter)
	}

	var (
		result interface{}
		err    error
	)
	if sc.breaker != nil {
		result, err = sc.breaker.Execute(fetch)
	} else {
		result, err = fetch()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "%s fetch of %s failed", side, entityType)
	}

	records := result.([]entity.Record)
	p.logger.Debug("Fetched records",
		zap.String("side", string(side)),
		zap.String("entity_type", string(entityType)),
		zap.Int("count", len(records)),
	)
	return records, nil
}

func (sc *sideClient) fetch(ctx context.Context, path string, filter repository.RecordFilter) ([]entity.Record, error) {
	endpoint := sc.cfg.BaseURL + path
	if len(filter.EntityIDs) > 0 {
		query := url.Values{}
		for _, id := range filter.EntityIDs {
			query.Add("id", id)
		}
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, endpoint)
	}

	var body struct {
		Data []entity.Record `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "failed to decode response")
	}
	return body.Data, nil
}
