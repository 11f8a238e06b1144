package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	applogger "MarketPulse/pkg/logger"
	pkgpg "MarketPulse/pkg/postgres"
)

var recordSchema = []string{
	`CREATE TABLE IF NOT EXISTS assets (
        id          UUID PRIMARY KEY,
        symbol      TEXT NOT NULL UNIQUE,
        asset_class TEXT NOT NULL,
        created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`,
	`CREATE TABLE IF NOT EXISTS market_records (
        id           UUID PRIMARY KEY,
        asset_id     UUID NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
        price        DOUBLE PRECISION NOT NULL,
        source       TEXT NOT NULL,
        processed_at TIMESTAMPTZ NOT NULL,
        payload      JSONB NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS idx_market_records_asset_time
        ON market_records (asset_id, processed_at DESC)`,
}

// PGRecordStore implements Persistence on PostgreSQL.
type PGRecordStore struct {
	db  *sqlx.DB
	pg  *pkgpg.Client
	now func() time.Time
	l   *applogger.Logger
}

func NewPGRecordStore(pg *pkgpg.Client, l *applogger.Logger) *PGRecordStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &PGRecordStore{db: pg.DB(), pg: pg, now: time.Now, l: l}
}

var _ domrepo.Persistence = (*PGRecordStore)(nil)

func (s *PGRecordStore) Init(ctx context.Context) error {
	return s.pg.InitSchema(ctx, recordSchema)
}

// UpsertAsset returns the id of symbol, creating the row on first sight.
func (s *PGRecordStore) UpsertAsset(ctx context.Context, symbol string, class models.AssetClass) (string, error) {
	const q = `
        INSERT INTO assets (id, symbol, asset_class, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $4)
        ON CONFLICT (symbol) DO UPDATE
            SET asset_class = EXCLUDED.asset_class, updated_at = EXCLUDED.updated_at
        RETURNING id
    `
	var id string
	if err := s.db.QueryRowxContext(ctx, q, uuid.NewString(), symbol, string(class), s.now().UTC()).Scan(&id); err != nil {
		return "", fmt.Errorf("upsert asset %s: %w", symbol, err)
	}
	return id, nil
}

func (s *PGRecordStore) FindAsset(ctx context.Context, symbol string) (string, error) {
	var id string
	err := s.db.GetContext(ctx, &id, `SELECT id FROM assets WHERE symbol = $1`, symbol)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("asset %s: %w", symbol, models.ErrNotAvailable)
	}
	if err != nil {
		return "", fmt.Errorf("find asset %s: %w", symbol, err)
	}
	return id, nil
}

func (s *PGRecordStore) AppendMarketRecord(ctx context.Context, assetID string, rec *models.EnrichedRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	const q = `
        INSERT INTO market_records (id, asset_id, price, source, processed_at, payload)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (id) DO NOTHING
    `
	if _, err := s.db.ExecContext(ctx, q, id, assetID, rec.Point.Price, rec.Source, rec.ProcessedAt, payload); err != nil {
		s.l.Error("append market record failed",
			applogger.String("symbol", rec.Symbol), applogger.Error(err))
		return fmt.Errorf("append record %s: %w", rec.Symbol, err)
	}
	return nil
}

func (s *PGRecordStore) LatestRecord(ctx context.Context, assetID string) (*models.EnrichedRecord, error) {
	var payload []byte
	const q = `
        SELECT payload FROM market_records
        WHERE asset_id = $1
        ORDER BY processed_at DESC
        LIMIT 1
    `
	err := s.db.GetContext(ctx, &payload, q, assetID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("latest record: %w", err)
	}
	var rec models.EnrichedRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}

// DeleteRecordsOlderThan drops records processed before cutoff.
func (s *PGRecordStore) DeleteRecordsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM market_records WHERE processed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old records: %w", err)
	}
	return res.RowsAffected()
}

func (s *PGRecordStore) Health(ctx context.Context) error { return s.pg.Health(ctx) }

func (s *PGRecordStore) Close() error { return s.pg.Close() }
