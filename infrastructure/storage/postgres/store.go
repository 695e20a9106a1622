// Package postgres implements the persistence boundary on PostgreSQL.
// Entities are stored as JSONB documents keyed by id; the core only needs
// create/read/update-by-id semantics, so the store owns no relational schema
// beyond these tables.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/steiner385/MachShop-sub017/config"
	"github.com/steiner385/MachShop-sub017/domain/entity"
)

// Schema creates the document tables when they do not exist. Deployments that
// manage migrations externally can ignore it.
const Schema = `
CREATE TABLE IF NOT EXISTS discrepancies (
	id          TEXT PRIMARY KEY,
	entity_type TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	doc         JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS reconciliation_reports (
	id          TEXT PRIMARY KEY,
	entity_type TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	doc         JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS sync_jobs (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	doc        JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS sync_operations (
	id         TEXT PRIMARY KEY,
	started_at TIMESTAMPTZ NOT NULL,
	doc        JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS conflicts (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	doc        JSONB NOT NULL
);
`

// Store implements the store interfaces on a PostgreSQL connection pool, with
// a circuit breaker guarding every round trip.
type Store struct {
	db      *sqlx.DB
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewStore connects to PostgreSQL and ensures the document tables exist.
func NewStore(cfg config.PostgresConfig, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to postgres")
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	store := &Store{db: db, logger: logger}
	if cfg.BreakerEnabled {
		store.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "postgres-store",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("Postgres circuit breaker state changed",
					zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
	}

	if _, err := db.Exec(Schema); err != nil {
		return nil, errors.Wrap(err, "failed to ensure schema")
	}

	logger.Info("Postgres store initialized",
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Bool("breaker_enabled", cfg.BreakerEnabled),
	)
	return store, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) execute(fn func() error) error {
	if s.breaker == nil {
		return fn()
	}
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

func (s *Store) upsert(ctx context.Context, query string, args ...interface{}) error {
	return s.execute(func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

func (s *Store) getDoc(ctx context.Context, query string, out interface{}, args ...interface{}) error {
	var doc []byte
	err := s.execute(func() error {
		return s.db.GetContext(ctx, &doc, query, args...)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		return err
	}
	return json.Unmarshal(doc, out)
}

// SaveDiscrepancies stores a batch of discrepancies.
func (s *Store) SaveDiscrepancies(ctx context.Context, discrepancies []entity.Discrepancy) error {
	for i := range discrepancies {
		d := discrepancies[i]
		doc, err := json.Marshal(d)
		if err != nil {
			return errors.Wrap(err, "failed to marshal discrepancy")
		}
		err = s.upsert(ctx,
			`INSERT INTO discrepancies (id, entity_type, created_at, doc) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`,
			d.ID, string(d.EntityType), d.CreatedAt, doc)
		if err != nil {
			return errors.Wrap(err, "failed to save discrepancy")
		}
	}
	return nil
}

// GetDiscrepancy returns a discrepancy by id, or nil when unknown.
func (s *Store) GetDiscrepancy(ctx context.Context, id string) (*entity.Discrepancy, error) {
	var d entity.Discrepancy
	err := s.getDoc(ctx, `SELECT doc FROM discrepancies WHERE id = $1`, &d, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load discrepancy")
	}
	return &d, nil
}

// UpdateDiscrepancy replaces a stored discrepancy.
func (s *Store) UpdateDiscrepancy(ctx context.Context, d *entity.Discrepancy) error {
	return s.SaveDiscrepancies(ctx, []entity.Discrepancy{*d})
}

// SaveReport stores or replaces a report.
func (s *Store) SaveReport(ctx context.Context, report *entity.ReconciliationReport) error {
	doc, err := json.Marshal(report)
	if err != nil {
		return errors.Wrap(err, "failed to marshal report")
	}
	return errors.Wrap(s.upsert(ctx,
		`INSERT INTO reconciliation_reports (id, entity_type, started_at, doc) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`,
		report.ID, string(report.EntityType), report.StartedAt, doc), "failed to save report")
}

// GetReport returns a report by id, or nil when unknown.
func (s *Store) GetReport(ctx context.Context, id string) (*entity.ReconciliationReport, error) {
	var r entity.ReconciliationReport
	err := s.getDoc(ctx, `SELECT doc FROM reconciliation_reports WHERE id = $1`, &r, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load report")
	}
	return &r, nil
}

// ListReports returns reports for an entity type started at or after since,
// newest first.
func (s *Store) ListReports(ctx context.Context, entityType entity.EntityType, since time.Time) ([]entity.ReconciliationReport, error) {
	var docs [][]byte
	err := s.execute(func() error {
		return s.db.SelectContext(ctx, &docs,
			`SELECT doc FROM reconciliation_reports
			 WHERE entity_type = $1 AND started_at >= $2
			 ORDER BY started_at DESC`,
			string(entityType), since)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list reports")
	}

	reports := make([]entity.ReconciliationReport, 0, len(docs))
	for _, doc := range docs {
		var r entity.ReconciliationReport
		if err := json.Unmarshal(doc, &r); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal report")
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// SaveJob stores or replaces a job.
func (s *Store) SaveJob(ctx context.Context, job *entity.SyncJob) error {
	doc, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "failed to marshal job")
	}
	return errors.Wrap(s.upsert(ctx,
		`INSERT INTO sync_jobs (id, created_at, doc) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`,
		job.ID, job.CreatedAt, doc), "failed to save job")
}

// GetJob returns a job by id, or nil when unknown.
func (s *Store) GetJob(ctx context.Context, id string) (*entity.SyncJob, error) {
	var j entity.SyncJob
	err := s.getDoc(ctx, `SELECT doc FROM sync_jobs WHERE id = $1`, &j, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load job")
	}
	return &j, nil
}

// ListJobs returns all jobs, newest first.
func (s *Store) ListJobs(ctx context.Context) ([]entity.SyncJob, error) {
	var docs [][]byte
	err := s.execute(func() error {
		return s.db.SelectContext(ctx, &docs, `SELECT doc FROM sync_jobs ORDER BY created_at DESC`)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}

	jobs := make([]entity.SyncJob, 0, len(docs))
	for _, doc := range docs {
		var j entity.SyncJob
		if err := json.Unmarshal(doc, &j); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal job")
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// SaveOperation stores or replaces an operation.
func (s *Store) SaveOperation(ctx context.Context, op *entity.SyncOperation) error {
	doc, err := json.Marshal(op)
	if err != nil {
		return errors.Wrap(err, "failed to marshal operation")
	}
	return errors.Wrap(s.upsert(ctx,
		`INSERT INTO sync_operations (id, started_at, doc) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`,
		op.ID, op.StartedAt, doc), "failed to save operation")
}

// GetOperation returns an operation by id, or nil when unknown.
func (s *Store) GetOperation(ctx context.Context, id string) (*entity.SyncOperation, error) {
	var op entity.SyncOperation
	err := s.getDoc(ctx, `SELECT doc FROM sync_operations WHERE id = $1`, &op, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load operation")
	}
	return &op, nil
}

// SaveConflict stores or replaces a conflict.
func (s *Store) SaveConflict(ctx context.Context, c *entity.Conflict) error {
	doc, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal conflict")
	}
	return errors.Wrap(s.upsert(ctx,
		`INSERT INTO conflicts (id, status, created_at, doc) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, doc = EXCLUDED.doc`,
		c.ID, string(c.Status), c.CreatedAt, doc), "failed to save conflict")
}

// GetConflict returns a conflict by id, or nil when unknown.
func (s *Store) GetConflict(ctx context.Context, id string) (*entity.Conflict, error) {
	var c entity.Conflict
	err := s.getDoc(ctx, `SELECT doc FROM conflicts WHERE id = $1`, &c, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load conflict")
	}
	return &c, nil
}

// ListConflicts returns conflicts in the given status, oldest first.
func (s *Store) ListConflicts(ctx context.Context, status entity.ConflictStatus) ([]entity.Conflict, error) {
	var docs [][]byte
	err := s.execute(func() error {
		return s.db.SelectContext(ctx, &docs,
			`SELECT doc FROM conflicts WHERE status = $1 ORDER BY created_at ASC`, string(status))
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conflicts")
	}

	conflicts := make([]entity.Conflict, 0, len(docs))
	for _, doc := range docs {
		var c entity.Conflict
		if err := json.Unmarshal(doc, &c); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal conflict")
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, nil
}
