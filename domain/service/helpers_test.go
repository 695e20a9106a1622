package service

import (
	"context"
	"sync"
	"time"

	"github.com/steiner385/MachShop-sub017/config"
	"github.com/steiner385/MachShop-sub017/domain/entity"
	"github.com/steiner385/MachShop-sub017/domain/repository"
)

// fakeClock is a manually advanced clock shared by the service tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testDetectionConfig() config.DetectionConfig {
	return config.DetectionConfig{
		NumericTolerance:   0.0001,
		TimestampTolerance: time.Second,
		CriticalFields: map[string][]string{
			"work_order":     {"quantityOrdered", "status", "priority"},
			"purchase_order": {"quantity", "status", "unitPrice"},
		},
		MasterDataFields: []string{"name", "partNumber"},
		AlternateKeys: map[string]string{
			"work_order":     "workOrderNumber",
			"purchase_order": "poNumber",
		},
	}
}

func testReportingConfig() config.ReportingConfig {
	return config.ReportingConfig{
		PenaltyCritical:  15,
		PenaltyHigh:      5,
		PenaltyMedium:    2,
		PenaltyLow:       0.5,
		MaxTrendLookback: 90 * 24 * time.Hour,
	}
}

func testSchedulerConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		DefaultMaxRetries: 3,
		RetryBackoffBase:  2 * time.Second,
		RetryBackoffMax:   5 * time.Minute,
		QueuePreviewSize:  5,
		JobTimeout:        time.Minute,
		PollInterval:      time.Millisecond,
	}
}

// fakeProvider serves canned record snapshots per side and entity type.
type fakeProvider struct {
	mu      sync.Mutex
	records map[entity.System]map[entity.EntityType][]entity.Record
	errs    map[entity.System]error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		records: make(map[entity.System]map[entity.EntityType][]entity.Record),
		errs:    make(map[entity.System]error),
	}
}

func (p *fakeProvider) set(side entity.System, entityType entity.EntityType, records []entity.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.records[side] == nil {
		p.records[side] = make(map[entity.EntityType][]entity.Record)
	}
	p.records[side][entityType] = records
}

func (p *fakeProvider) fail(side entity.System, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[side] = err
}

func (p *fakeProvider) FetchRecords(_ context.Context, entityType entity.EntityType, side entity.System, _ repository.RecordFilter) ([]entity.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.errs[side]; err != nil {
		return nil, err
	}
	return p.records[side][entityType], nil
}

// captureNotifier records every event it receives.
type captureNotifier struct {
	mu     sync.Mutex
	events []repository.IntegrationEvent
	err    error
}

func (n *captureNotifier) Notify(_ context.Context, event repository.IntegrationEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.events = append(n.events, event)
	return nil
}

func (n *captureNotifier) eventsOfType(eventType string) []repository.IntegrationEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []repository.IntegrationEvent
	for _, e := range n.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
