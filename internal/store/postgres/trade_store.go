package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/twapwatch/internal/domain"
)

var _ domain.TradeStore = (*TradeStore)(nil)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeCols = `exchange, time_ms, price, qty, is_buyer_maker`

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		if err := rows.Scan(&t.Exchange, &t.Time, &t.Price, &t.Quantity, &t.IsBuyerMaker); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// InsertBatch inserts trades for symbol with a pgx Batch. Rows already
// present under the (symbol, exchange, time, price, qty) key are skipped.
// It returns the number of rows actually inserted.
func (s *TradeStore) InsertBatch(ctx context.Context, symbol string, collectedAt int64, trades []domain.Trade) (int64, error) {
	if len(trades) == 0 {
		return 0, nil
	}

	const query = `
		INSERT INTO trades (symbol, exchange, time_ms, price, qty, is_buyer_maker, collected_at_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (symbol, exchange, time_ms, price, qty) DO NOTHING`

	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(query, symbol, t.Exchange, t.Time, t.Price, t.Quantity, t.IsBuyerMaker, collectedAt)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	var inserted int64
	for i := range trades {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("postgres: insert trade batch item %d: %w", i, err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// FindByPeriod returns every exchange's trades for symbol with time in
// [sinceMs, untilMs], oldest first.
func (s *TradeStore) FindByPeriod(ctx context.Context, symbol string, sinceMs, untilMs int64) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+tradeCols+` FROM trades
		WHERE symbol = $1 AND time_ms >= $2 AND time_ms <= $3
		ORDER BY time_ms ASC, id ASC`,
		symbol, sinceMs, untilMs,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: find trades by period: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades by period: %w", err)
	}
	return trades, nil
}

// FindByExchange is FindByPeriod restricted to one exchange.
func (s *TradeStore) FindByExchange(ctx context.Context, symbol, exchange string, sinceMs, untilMs int64) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+tradeCols+` FROM trades
		WHERE symbol = $1 AND exchange = $2 AND time_ms >= $3 AND time_ms <= $4
		ORDER BY time_ms ASC, id ASC`,
		symbol, exchange, sinceMs, untilMs,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: find trades by exchange: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades by exchange: %w", err)
	}
	return trades, nil
}

// ListCollectedBefore returns the rows collected strictly before cutoffMs, for
// archiving ahead of DeleteCollectedBefore.
func (s *TradeStore) ListCollectedBefore(ctx context.Context, cutoffMs int64) ([]domain.StoredTrade, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, symbol, collected_at_ms, `+tradeCols+` FROM trades
		WHERE collected_at_ms < $1
		ORDER BY time_ms ASC, id ASC`,
		cutoffMs,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades collected before: %w", err)
	}
	defer rows.Close()

	var out []domain.StoredTrade
	for rows.Next() {
		var st domain.StoredTrade
		if err := rows.Scan(&st.ID, &st.Symbol, &st.CollectedAt,
			&st.Exchange, &st.Time, &st.Price, &st.Quantity, &st.IsBuyerMaker,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan stored trade: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list trades collected before: %w", err)
	}
	return out, nil
}

// DeleteCollectedBefore removes rows collected strictly before cutoffMs and
// returns the number deleted.
func (s *TradeStore) DeleteCollectedBefore(ctx context.Context, cutoffMs int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trades WHERE collected_at_ms < $1`, cutoffMs)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades collected before: %w", err)
	}
	return tag.RowsAffected(), nil
}
