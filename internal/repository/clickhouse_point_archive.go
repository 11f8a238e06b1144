package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	pkgch "MarketPulse/pkg/clickhouse"
	applogger "MarketPulse/pkg/logger"
)

const defaultPointTable = "market_points"

// CHPointArchive implements PointArchive backed by ClickHouse.
type CHPointArchive struct {
	ch    *pkgch.Client
	db    *sql.DB
	table string
	ttl   int
	l     *applogger.Logger
}

type ArchiveOption func(*CHPointArchive)

// WithArchiveTable overrides the fully qualified table name.
func WithArchiveTable(table string) ArchiveOption {
	return func(a *CHPointArchive) {
		if table != "" {
			a.table = table
		}
	}
}

// WithArchiveTTLDays sets the MergeTree TTL used when creating the table.
func WithArchiveTTLDays(days int) ArchiveOption {
	return func(a *CHPointArchive) {
		if days > 0 {
			a.ttl = days
		}
	}
}

func NewCHPointArchive(ch *pkgch.Client, l *applogger.Logger, opts ...ArchiveOption) *CHPointArchive {
	if l == nil {
		l = applogger.Nop()
	}
	a := &CHPointArchive{ch: ch, db: ch.DB(), table: defaultPointTable, ttl: 90, l: l}
	for _, o := range opts {
		o(a)
	}
	return a
}

var _ domrepo.PointArchive = (*CHPointArchive)(nil)

func (a *CHPointArchive) Init(ctx context.Context) error {
	const ddl = `
        CREATE TABLE IF NOT EXISTS %s (
            ts      DateTime64(3, 'UTC'),
            symbol  LowCardinality(String),
            price   Float64,
            volume  Nullable(Float64),
            high    Nullable(Float64),
            low     Nullable(Float64),
            open    Nullable(Float64),
            close   Nullable(Float64),
            source  LowCardinality(String)
        )
        ENGINE = MergeTree
        ORDER BY (symbol, ts)
        TTL toDateTime(ts) + INTERVAL %d DAY
    `
	return a.ch.InitSchema(ctx, []string{fmt.Sprintf(ddl, a.table, a.ttl)})
}

func (a *CHPointArchive) AppendPoint(ctx context.Context, p models.MarketPoint) error {
	q := fmt.Sprintf("INSERT INTO %s (ts, symbol, price, volume, high, low, open, close, source) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)", a.table)
	_, err := a.db.ExecContext(ctx, q,
		p.Timestamp.UTC(),
		p.Symbol,
		p.Price,
		p.Volume,
		p.High,
		p.Low,
		p.Open,
		p.Close,
		p.Source,
	)
	if err != nil {
		a.l.Error("clickhouse append_point error",
			applogger.String("table", a.table),
			applogger.String("symbol", p.Symbol),
			applogger.Error(err),
		)
		return fmt.Errorf("append point: %w", err)
	}
	return nil
}

// RecentPoints returns up to limit points at or after since, oldest first.
func (a *CHPointArchive) RecentPoints(ctx context.Context, symbol string, since time.Time, limit int) ([]models.MarketPoint, error) {
	start := time.Now()
	const qtpl = `
        SELECT ts, symbol, price, volume, high, low, open, close, source
        FROM %s
        WHERE symbol = ? AND ts >= ?
        ORDER BY ts DESC
        LIMIT ?
    `
	rows, err := a.db.QueryContext(ctx, fmt.Sprintf(qtpl, a.table), symbol, since.UTC(), limit)
	if err != nil {
		a.l.Error("clickhouse recent_points query error",
			applogger.String("table", a.table),
			applogger.String("symbol", symbol),
			applogger.Int("limit", limit),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("recent points: %w", err)
	}
	defer rows.Close()

	out := make([]models.MarketPoint, 0, limit)
	for rows.Next() {
		var (
			p                             models.MarketPoint
			volume, high, low, open, clse sql.NullFloat64
		)
		if err := rows.Scan(&p.Timestamp, &p.Symbol, &p.Price, &volume, &high, &low, &open, &clse, &p.Source); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		p.Volume, p.High, p.Low, p.Open, p.Close = nullable(volume), nullable(high), nullable(low), nullable(open), nullable(clse)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	a.l.Debug("clickhouse recent_points ok",
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (a *CHPointArchive) Close() error { return a.ch.Close() }

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return models.Float(v.Float64)
}
