package statestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mselser95/mercury/pkg/types"
)

// PostgresConfig holds the connection parameters for PostgresStore.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// PostgresStore implements Store against PostgreSQL, applying the embedded
// schema migrations on connect.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore opens the connection, pings it, and applies migrations.
func NewPostgresStore(cfg *PostgresConfig) (*PostgresStore, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &PostgresStore{db: db, logger: cfg.Logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	cfg.Logger.Info("postgres-statestore-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return s, nil
}

func (s *PostgresStore) migrate() error {
	entries, err := migrationFiles.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		raw, err := migrationFiles.ReadFile(migrationsDir + "/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.Exec(string(raw)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		s.logger.Debug("migration-applied", zap.String("file", entry.Name()))
	}
	return nil
}

// GetCircuitBreakerState loads the singleton breaker row, whatever date it
// carries, returning the zero-value NORMAL state when none has been written
// yet.
func (s *PostgresStore) GetCircuitBreakerState() (types.CircuitBreakerState, error) {
	row := s.db.QueryRow(`
		SELECT date, level, realized_pnl, circuit_breaker_hit, hit_at, hit_reason,
		       total_trades_today, consecutive_fails
		FROM circuit_breaker_state WHERE id = 1`)

	var st types.CircuitBreakerState
	var hitAt sql.NullTime
	var hitReason sql.NullString
	err := row.Scan(&st.Date, &st.Level, &st.RealizedPnL, &st.CircuitBreakerHit, &hitAt,
		&hitReason, &st.TotalTradesToday, &st.ConsecutiveFails)
	if errors.Is(err, sql.ErrNoRows) {
		return types.CircuitBreakerState{Date: time.Now().UTC(), Level: types.BreakerNormal}, nil
	}
	if err != nil {
		return types.CircuitBreakerState{}, fmt.Errorf("query circuit breaker state: %w", err)
	}
	if hitAt.Valid {
		st.HitAt = &hitAt.Time
	}
	st.HitReason = hitReason.String
	return st, nil
}

// SaveCircuitBreakerState upserts the singleton breaker row.
func (s *PostgresStore) SaveCircuitBreakerState(st types.CircuitBreakerState) error {
	_, err := s.db.Exec(`
		INSERT INTO circuit_breaker_state
			(id, date, level, realized_pnl, circuit_breaker_hit, hit_at, hit_reason,
			 total_trades_today, consecutive_fails)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			date = EXCLUDED.date, level = EXCLUDED.level, realized_pnl = EXCLUDED.realized_pnl,
			circuit_breaker_hit = EXCLUDED.circuit_breaker_hit, hit_at = EXCLUDED.hit_at,
			hit_reason = EXCLUDED.hit_reason, total_trades_today = EXCLUDED.total_trades_today,
			consecutive_fails = EXCLUDED.consecutive_fails`,
		st.Date, st.Level, st.RealizedPnL, st.CircuitBreakerHit, st.HitAt, st.HitReason,
		st.TotalTradesToday, st.ConsecutiveFails,
	)
	if err != nil {
		return fmt.Errorf("save circuit breaker state: %w", err)
	}
	return nil
}

// GetDailyStats loads today's rollup row, returning a zeroed stats record
// dated today if nothing has been written yet.
func (s *PostgresStore) GetDailyStats() (types.DailyStats, error) {
	row := s.db.QueryRow(`
		SELECT date, trade_count, volume_usd, realized_pnl, positions_opened,
		       positions_closed, wins, losses, exposure, opportunities_detected,
		       opportunities_executed, max_drawdown
		FROM daily_stats WHERE date = CURRENT_DATE`)

	var ds types.DailyStats
	err := row.Scan(&ds.Date, &ds.TradeCount, &ds.VolumeUSD, &ds.RealizedPnL, &ds.PositionsOpened,
		&ds.PositionsClosed, &ds.Wins, &ds.Losses, &ds.Exposure, &ds.OpportunitiesDetected,
		&ds.OpportunitiesExecuted, &ds.MaxDrawdown)
	if errors.Is(err, sql.ErrNoRows) {
		return types.DailyStats{Date: time.Now().UTC()}, nil
	}
	if err != nil {
		return types.DailyStats{}, fmt.Errorf("query daily stats: %w", err)
	}
	return ds, nil
}

// SaveDailyStats upserts the current day's rollup row.
func (s *PostgresStore) SaveDailyStats(ds types.DailyStats) error {
	_, err := s.db.Exec(`
		INSERT INTO daily_stats
			(date, trade_count, volume_usd, realized_pnl, positions_opened, positions_closed,
			 wins, losses, exposure, opportunities_detected, opportunities_executed, max_drawdown)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (date) DO UPDATE SET
			trade_count = EXCLUDED.trade_count, volume_usd = EXCLUDED.volume_usd,
			realized_pnl = EXCLUDED.realized_pnl, positions_opened = EXCLUDED.positions_opened,
			positions_closed = EXCLUDED.positions_closed, wins = EXCLUDED.wins, losses = EXCLUDED.losses,
			exposure = EXCLUDED.exposure, opportunities_detected = EXCLUDED.opportunities_detected,
			opportunities_executed = EXCLUDED.opportunities_executed, max_drawdown = EXCLUDED.max_drawdown`,
		ds.Date, ds.TradeCount, ds.VolumeUSD, ds.RealizedPnL, ds.PositionsOpened, ds.PositionsClosed,
		ds.Wins, ds.Losses, ds.Exposure, ds.OpportunitiesDetected, ds.OpportunitiesExecuted, ds.MaxDrawdown,
	)
	if err != nil {
		return fmt.Errorf("save daily stats: %w", err)
	}
	return nil
}

// CurrentExposureUSD sums the USD cost basis of open positions touching the
// given market (or all open positions when marketID is empty).
func (s *PostgresStore) CurrentExposureUSD(marketID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	var row *sql.Row
	if marketID == "" {
		row = s.db.QueryRow(`
			SELECT COALESCE(SUM(yes_size * yes_avg_price + no_size * no_avg_price), 0)
			FROM positions WHERE status IN ('OPEN', 'PENDING_SETTLEMENT')`)
	} else {
		row = s.db.QueryRow(`
			SELECT COALESCE(SUM(yes_size * yes_avg_price + no_size * no_avg_price), 0)
			FROM positions WHERE status IN ('OPEN', 'PENDING_SETTLEMENT') AND market_id = $1`, marketID)
	}
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("query exposure: %w", err)
	}
	return total, nil
}

// RecordRealizedPnL appends a row to the realized P&L ledger.
func (s *PostgresStore) RecordRealizedPnL(ctx context.Context, entry types.RealizedPnlEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO realized_pnl_ledger (trade_id, trade_date, pnl_amount, pnl_type, notes)
		VALUES ($1, $2, $3, $4, $5)`,
		entry.TradeID, entry.TradeDate, entry.PnLAmount, entry.PnLType, entry.Notes,
	)
	if err != nil {
		return fmt.Errorf("record realized pnl: %w", err)
	}
	return nil
}

// SaveTrade upserts an order's fill state into the trades table.
func (s *PostgresStore) SaveTrade(ctx context.Context, o *types.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades
			(order_id, client_order_id, market_id, token_id, side, outcome, order_type,
			 requested_size, filled_size, price, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (order_id) DO UPDATE SET
			filled_size = EXCLUDED.filled_size, price = EXCLUDED.price,
			status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`,
		o.OrderID, o.ClientOrderID, o.MarketID, o.TokenID, o.Side, o.Outcome, o.OrderType,
		o.RequestedSize, o.FilledSize, o.Price, o.Status, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save trade: %w", err)
	}
	return nil
}

// SavePosition upserts a hedged position row.
func (s *PostgresStore) SavePosition(ctx context.Context, p *types.Position) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions
			(position_id, market_id, condition_id, yes_token_id, no_token_id, yes_size, no_size,
			 yes_avg_price, no_avg_price, status, opened_at, closed_at, realized_pnl, settlement_proceeds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (position_id) DO UPDATE SET
			yes_size = EXCLUDED.yes_size, no_size = EXCLUDED.no_size,
			yes_avg_price = EXCLUDED.yes_avg_price, no_avg_price = EXCLUDED.no_avg_price,
			status = EXCLUDED.status, closed_at = EXCLUDED.closed_at,
			realized_pnl = EXCLUDED.realized_pnl, settlement_proceeds = EXCLUDED.settlement_proceeds`,
		p.PositionID, p.MarketID, p.ConditionID, p.YesTokenID, p.NoTokenID, p.YesSize, p.NoSize,
		p.YesAvgPrice, p.NoAvgPrice, p.Status, p.OpenedAt, p.ClosedAt, p.RealizedPnL, p.SettlementProceeds,
	)
	if err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	return nil
}

// GetPosition loads a single position by ID.
func (s *PostgresStore) GetPosition(ctx context.Context, positionID string) (*types.Position, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT position_id, market_id, condition_id, yes_token_id, no_token_id, yes_size, no_size,
		       yes_avg_price, no_avg_price, status, opened_at, closed_at, realized_pnl, settlement_proceeds
		FROM positions WHERE position_id = $1`, positionID)
	return scanPosition(row)
}

// OpenPositions lists positions not yet fully settled.
func (s *PostgresStore) OpenPositions(ctx context.Context) ([]*types.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position_id, market_id, condition_id, yes_token_id, no_token_id, yes_size, no_size,
		       yes_avg_price, no_avg_price, status, opened_at, closed_at, realized_pnl, settlement_proceeds
		FROM positions WHERE status IN ('OPEN', 'PENDING_SETTLEMENT')`)
	if err != nil {
		return nil, fmt.Errorf("query open positions: %w", err)
	}
	defer rows.Close()

	var out []*types.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row rowScanner) (*types.Position, error) {
	var p types.Position
	var closedAt sql.NullTime
	err := row.Scan(&p.PositionID, &p.MarketID, &p.ConditionID, &p.YesTokenID, &p.NoTokenID,
		&p.YesSize, &p.NoSize, &p.YesAvgPrice, &p.NoAvgPrice, &p.Status, &p.OpenedAt, &closedAt,
		&p.RealizedPnL, &p.SettlementProceeds)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan position: %w", err)
	}
	if closedAt.Valid {
		p.ClosedAt = &closedAt.Time
	}
	return &p, nil
}

// EnqueueSettlement inserts a new settlement queue entry for a just-opened
// position awaiting market resolution.
func (s *PostgresStore) EnqueueSettlement(ctx context.Context, e *types.SettlementQueueEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settlement_queue
			(position_id, parent_position_id, market_id, condition_id, side, size, entry_price, entry_cost,
			 market_end_time, status, claim_attempts, last_claim_error, next_retry_at,
			 claimed_at, claim_proceeds, claim_profit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (position_id) DO NOTHING`,
		e.PositionID, e.ParentPositionID, e.MarketID, e.ConditionID, e.Side, e.Size, e.EntryPrice, e.EntryCost,
		e.MarketEndTime, e.Status, e.ClaimAttempts, e.LastClaimError, e.NextRetryAt,
		e.ClaimedAt, e.ClaimProceeds, e.ClaimProfit,
	)
	if err != nil {
		return fmt.Errorf("enqueue settlement: %w", err)
	}
	return nil
}

// UpdateSettlement persists a retry attempt or terminal claim outcome.
func (s *PostgresStore) UpdateSettlement(ctx context.Context, e *types.SettlementQueueEntry) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE settlement_queue SET
			status = $2, claim_attempts = $3, last_claim_error = $4, next_retry_at = $5,
			claimed_at = $6, claim_proceeds = $7, claim_profit = $8
		WHERE position_id = $1`,
		e.PositionID, e.Status, e.ClaimAttempts, e.LastClaimError, e.NextRetryAt,
		e.ClaimedAt, e.ClaimProceeds, e.ClaimProfit,
	)
	if err != nil {
		return fmt.Errorf("update settlement: %w", err)
	}
	return nil
}

// ClaimableSettlements lists pending entries whose market ended at least
// minTimeSinceEnd ago, with fewer than maxAttempts claim attempts, and
// whose next_retry_at has arrived — the four filters spec'd for
// get_claimable_positions.
func (s *PostgresStore) ClaimableSettlements(ctx context.Context, maxAttempts int, minTimeSinceEnd time.Duration) ([]*types.SettlementQueueEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position_id, parent_position_id, market_id, condition_id, side, size, entry_price, entry_cost,
		       market_end_time, status, claim_attempts, last_claim_error, next_retry_at,
		       claimed_at, claim_proceeds, claim_profit
		FROM settlement_queue
		WHERE status = $1 AND claim_attempts < $2
		  AND market_end_time <= NOW() - $3::interval
		  AND next_retry_at <= NOW()`,
		types.SettlementPending, maxAttempts, fmt.Sprintf("%d seconds", int(minTimeSinceEnd.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("query claimable settlements: %w", err)
	}
	defer rows.Close()

	var out []*types.SettlementQueueEntry
	for rows.Next() {
		var e types.SettlementQueueEntry
		var lastErr sql.NullString
		var claimedAt sql.NullTime
		if err := rows.Scan(&e.PositionID, &e.ParentPositionID, &e.MarketID, &e.ConditionID, &e.Side, &e.Size,
			&e.EntryPrice, &e.EntryCost, &e.MarketEndTime, &e.Status, &e.ClaimAttempts,
			&lastErr, &e.NextRetryAt, &claimedAt, &e.ClaimProceeds, &e.ClaimProfit); err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		e.LastClaimError = lastErr.String
		if claimedAt.Valid {
			e.ClaimedAt = &claimedAt.Time
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// RecordClaimAttempt increments the claim_attempts counter and persists the
// backoff state for a failed claim, returning the authoritative new count.
func (s *PostgresStore) RecordClaimAttempt(ctx context.Context, positionID, claimErr string, nextRetryAt time.Time) (int, error) {
	var attempts int
	err := s.db.QueryRowContext(ctx, `
		UPDATE settlement_queue SET
			claim_attempts = claim_attempts + 1, last_claim_error = $2, next_retry_at = $3
		WHERE position_id = $1
		RETURNING claim_attempts`, positionID, claimErr, nextRetryAt).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("record claim attempt: %w", err)
	}
	return attempts, nil
}

// MarkClaimed marks a settlement queue entry claimed and records proceeds.
func (s *PostgresStore) MarkClaimed(ctx context.Context, positionID string, proceeds, profit decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE settlement_queue SET
			status = $2, claimed_at = NOW(), claim_proceeds = $3, claim_profit = $4
		WHERE position_id = $1`, positionID, types.SettlementClaimed, proceeds, profit)
	if err != nil {
		return fmt.Errorf("mark claimed: %w", err)
	}
	return nil
}

// MarkSettlementFailed marks a settlement queue entry permanently failed.
func (s *PostgresStore) MarkSettlementFailed(ctx context.Context, positionID, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE settlement_queue SET status = $2, last_claim_error = $3
		WHERE position_id = $1`, positionID, types.SettlementFailed, reason)
	if err != nil {
		return fmt.Errorf("mark settlement failed: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	s.logger.Info("closing-postgres-statestore")
	return s.db.Close()
}
