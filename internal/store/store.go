// Package store is the persistent store this engine is wired against: a
// SQLite-backed implementation (modernc.org/sqlite, pure Go) of the exact
// read/write contract spec.md §6 allows the core to call. This is the
// "out of scope" collaborator made concrete so the rest of the engine has
// something real to run against; table layout and init-table style are
// adapted from the teacher's store.StrategyStore (store/strategy.go).
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"ocengine/internal/model"
)

// Store is the persistence boundary. The core issues only these calls
// (spec.md §6): ListActiveStrategies, FindOpenPositions, InsertPosition,
// UpdatePosition, GetSymbolFilters, GetConfig.
type Store struct {
	db *sql.DB
}

// Open connects to dsn and ensures the schema exists.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single-writer discipline
	s := &Store{db: db}
	if err := s.initTables(); err != nil {
		return nil, fmt.Errorf("store: init tables: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bots (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			venue TEXT NOT NULL,
			exchange_id TEXT NOT NULL DEFAULT '',
			is_reverse_strategy BOOLEAN DEFAULT 0,
			max_concurrent_trades INTEGER DEFAULT 1,
			default_leverage INTEGER DEFAULT 1,
			margin_type TEXT DEFAULT 'isolated',
			chat_ids TEXT DEFAULT '[]',
			is_active BOOLEAN DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS strategies (
			id TEXT PRIMARY KEY,
			bot_id TEXT NOT NULL,
			venue TEXT NOT NULL,
			symbol TEXT NOT NULL,
			interval TEXT NOT NULL,
			oc_threshold TEXT NOT NULL,
			trade_type TEXT NOT NULL,
			is_reverse_strategy BOOLEAN DEFAULT 0,
			extend INTEGER DEFAULT 0,
			take_profit INTEGER DEFAULT 0,
			stoploss INTEGER DEFAULT 0,
			reduce INTEGER DEFAULT 0,
			up_reduce INTEGER DEFAULT 0,
			amount TEXT NOT NULL DEFAULT '0',
			is_active BOOLEAN DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_strategies_venue_symbol ON strategies(venue, symbol)`,
		`CREATE TABLE IF NOT EXISTS positions (
			id TEXT PRIMARY KEY,
			bot_id TEXT NOT NULL,
			strategy_id TEXT NOT NULL,
			venue TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			entry_price TEXT NOT NULL,
			amount TEXT NOT NULL,
			take_profit_price TEXT NOT NULL,
			stop_loss_price TEXT,
			tp_order_id TEXT DEFAULT '',
			sl_order_id TEXT DEFAULT '',
			entry_order_id TEXT DEFAULT '',
			status TEXT NOT NULL,
			opened_at DATETIME NOT NULL,
			close_reason TEXT DEFAULT '',
			pnl TEXT NOT NULL DEFAULT '0'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_bot_status ON positions(bot_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_strategy_status ON positions(strategy_id, status)`,
		`CREATE TABLE IF NOT EXISTS symbol_filters (
			venue TEXT NOT NULL,
			symbol TEXT NOT NULL,
			tick_size TEXT NOT NULL,
			step_size TEXT NOT NULL,
			min_notional TEXT NOT NULL,
			max_leverage INTEGER NOT NULL,
			PRIMARY KEY (venue, symbol)
		)`,
		`CREATE TABLE IF NOT EXISTS price_alert_configs (
			id TEXT PRIMARY KEY,
			venue TEXT NOT NULL,
			symbols TEXT NOT NULL DEFAULT '[]',
			intervals TEXT NOT NULL DEFAULT '[]',
			threshold_percent TEXT NOT NULL,
			chat_id INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS app_configs (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// ListActiveStrategies returns every active strategy of every active bot.
func (s *Store) ListActiveStrategies() ([]model.Strategy, error) {
	rows, err := s.db.Query(`
		SELECT st.id, st.bot_id, st.venue, st.symbol, st.interval, st.oc_threshold,
		       st.trade_type, st.is_reverse_strategy, st.extend, st.take_profit,
		       st.stoploss, st.reduce, st.up_reduce, st.amount, st.is_active
		FROM strategies st
		JOIN bots b ON b.id = st.bot_id
		WHERE st.is_active = 1 AND b.is_active = 1
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list active strategies: %w", err)
	}
	defer rows.Close()

	var out []model.Strategy
	for rows.Next() {
		var st model.Strategy
		var ocThreshold, amount string
		if err := rows.Scan(&st.ID, &st.BotID, &st.Venue, &st.Symbol, &st.Interval,
			&ocThreshold, &st.TradeType, &st.IsReverseStrategy, &st.Extend, &st.TakeProfit,
			&st.StopLoss, &st.Reduce, &st.UpReduce, &amount, &st.IsActive); err != nil {
			return nil, fmt.Errorf("store: scan strategy: %w", err)
		}
		st.OCThreshold = decimalToFloat(ocThreshold)
		st.Amount = decimalToFloat(amount)
		out = append(out, st)
	}
	return out, rows.Err()
}

// FindOpenPositions returns open positions for a bot, a strategy, or both
// (empty string means "any").
func (s *Store) FindOpenPositions(botID, strategyID string) ([]model.Position, error) {
	query := `SELECT id, bot_id, strategy_id, venue, symbol, side, entry_price, amount,
	          take_profit_price, stop_loss_price, tp_order_id, sl_order_id, entry_order_id,
	          status, opened_at, close_reason, pnl FROM positions WHERE status = 'open'`
	var args []interface{}
	if botID != "" {
		query += " AND bot_id = ?"
		args = append(args, botID)
	}
	if strategyID != "" {
		query += " AND strategy_id = ?"
		args = append(args, strategyID)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: find open positions: %w", err)
	}
	defer rows.Close()

	var out []model.Position
	for rows.Next() {
		var p model.Position
		var entryPrice, amount, tp, pnl string
		var slPrice sql.NullString
		var openedAt time.Time
		if err := rows.Scan(&p.ID, &p.BotID, &p.StrategyID, &p.Venue, &p.Symbol, &p.Side,
			&entryPrice, &amount, &tp, &slPrice, &p.TPOrderID, &p.SLOrderID, &p.EntryOrderID,
			&p.Status, &openedAt, &p.CloseReason, &pnl); err != nil {
			return nil, fmt.Errorf("store: scan position: %w", err)
		}
		p.EntryPrice = decimalToFloat(entryPrice)
		p.Amount = decimalToFloat(amount)
		p.TakeProfitPrice = decimalToFloat(tp)
		p.PnL = decimalToFloat(pnl)
		p.OpenedAt = openedAt
		if slPrice.Valid {
			v := decimalToFloat(slPrice.String)
			p.StopLossPrice = &v
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertPosition persists a newly-acknowledged position. Idempotent on id.
func (s *Store) InsertPosition(p model.Position) error {
	var slPrice interface{}
	if p.StopLossPrice != nil {
		slPrice = floatToDecimal(*p.StopLossPrice)
	}
	_, err := s.db.Exec(`
		INSERT INTO positions (id, bot_id, strategy_id, venue, symbol, side, entry_price,
		  amount, take_profit_price, stop_loss_price, tp_order_id, sl_order_id,
		  entry_order_id, status, opened_at, close_reason, pnl)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, p.ID, p.BotID, p.StrategyID, p.Venue, p.Symbol, p.Side,
		floatToDecimal(p.EntryPrice), floatToDecimal(p.Amount), floatToDecimal(p.TakeProfitPrice),
		slPrice, p.TPOrderID, p.SLOrderID, p.EntryOrderID, p.Status, p.OpenedAt, p.CloseReason,
		floatToDecimal(p.PnL))
	if err != nil {
		return fmt.Errorf("store: insert position: %w", err)
	}
	return nil
}

// UpdatePosition applies a status/PnL/close-reason mutation by id.
func (s *Store) UpdatePosition(id string, status model.PositionStatus, closeReason string, pnl float64) error {
	_, err := s.db.Exec(`UPDATE positions SET status = ?, close_reason = ?, pnl = ? WHERE id = ?`,
		status, closeReason, floatToDecimal(pnl), id)
	if err != nil {
		return fmt.Errorf("store: update position: %w", err)
	}
	return nil
}

// GetSymbolFilters returns every symbol filter for one venue.
func (s *Store) GetSymbolFilters(venue string) ([]model.SymbolFilter, error) {
	rows, err := s.db.Query(`SELECT venue, symbol, tick_size, step_size, min_notional, max_leverage
	                          FROM symbol_filters WHERE venue = ?`, venue)
	if err != nil {
		return nil, fmt.Errorf("store: get symbol filters: %w", err)
	}
	defer rows.Close()

	var out []model.SymbolFilter
	for rows.Next() {
		var f model.SymbolFilter
		var tick, step, minNotional string
		if err := rows.Scan(&f.Venue, &f.Symbol, &tick, &step, &minNotional, &f.MaxLeverage); err != nil {
			return nil, fmt.Errorf("store: scan symbol filter: %w", err)
		}
		f.TickSize = decimalToFloat(tick)
		f.StepSize = decimalToFloat(step)
		f.MinNotional = decimalToFloat(minNotional)
		out = append(out, f)
	}
	return out, rows.Err()
}

// BulkUpsertSymbolFilters is the contract the external symbol-filter refresh
// job writes through (spec.md §4.1).
func (s *Store) BulkUpsertSymbolFilters(filters []model.SymbolFilter) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, f := range filters {
		if _, err := tx.Exec(`
			INSERT INTO symbol_filters (venue, symbol, tick_size, step_size, min_notional, max_leverage)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(venue, symbol) DO UPDATE SET
			  tick_size = excluded.tick_size, step_size = excluded.step_size,
			  min_notional = excluded.min_notional, max_leverage = excluded.max_leverage
		`, f.Venue, f.Symbol, floatToDecimal(f.TickSize), floatToDecimal(f.StepSize),
			floatToDecimal(f.MinNotional), f.MaxLeverage); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetBot returns one bot's configuration by id.
func (s *Store) GetBot(id string) (model.Bot, error) {
	var b model.Bot
	var chatIDsJSON string
	err := s.db.QueryRow(`
		SELECT id, name, venue, exchange_id, is_reverse_strategy, max_concurrent_trades,
		       default_leverage, margin_type, chat_ids, is_active
		FROM bots WHERE id = ?
	`, id).Scan(&b.ID, &b.Name, &b.Venue, &b.ExchangeID, &b.IsReverseDefault,
		&b.MaxConcurrentTrades, &b.DefaultLeverage, &b.MarginType, &chatIDsJSON, &b.IsActive)
	if err == sql.ErrNoRows {
		return model.Bot{}, fmt.Errorf("store: bot %s not found", id)
	}
	if err != nil {
		return model.Bot{}, fmt.Errorf("store: get bot: %w", err)
	}
	_ = json.Unmarshal([]byte(chatIDsJSON), &b.ChatIDs)
	return b, nil
}

// ListActiveBots returns every bot with is_active = 1, used at startup to
// wire one Order Service per bot.
func (s *Store) ListActiveBots() ([]model.Bot, error) {
	rows, err := s.db.Query(`
		SELECT id, name, venue, exchange_id, is_reverse_strategy, max_concurrent_trades,
		       default_leverage, margin_type, chat_ids, is_active
		FROM bots WHERE is_active = 1
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list active bots: %w", err)
	}
	defer rows.Close()

	var out []model.Bot
	for rows.Next() {
		var b model.Bot
		var chatIDsJSON string
		if err := rows.Scan(&b.ID, &b.Name, &b.Venue, &b.ExchangeID, &b.IsReverseDefault,
			&b.MaxConcurrentTrades, &b.DefaultLeverage, &b.MarginType, &chatIDsJSON, &b.IsActive); err != nil {
			return nil, fmt.Errorf("store: scan bot: %w", err)
		}
		_ = json.Unmarshal([]byte(chatIDsJSON), &b.ChatIDs)
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListAlertWatchers returns every configured price-alert watcher, used by
// the alert path to rebuild its in-memory AlertWatcher set periodically.
func (s *Store) ListAlertWatchers() ([]model.AlertWatcher, error) {
	rows, err := s.db.Query(`
		SELECT id, venue, symbols, intervals, threshold_percent, chat_id
		FROM price_alert_configs
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list alert watchers: %w", err)
	}
	defer rows.Close()

	var out []model.AlertWatcher
	for rows.Next() {
		var w model.AlertWatcher
		var symbolsJSON, intervalsJSON, thresholdStr string
		if err := rows.Scan(&w.ConfigID, &w.Venue, &symbolsJSON, &intervalsJSON, &thresholdStr, &w.ChatID); err != nil {
			return nil, fmt.Errorf("store: scan alert watcher: %w", err)
		}
		var symbols, intervals []string
		_ = json.Unmarshal([]byte(symbolsJSON), &symbols)
		_ = json.Unmarshal([]byte(intervalsJSON), &intervals)
		w.Symbols = make(map[string]struct{}, len(symbols))
		for _, s := range symbols {
			w.Symbols[s] = struct{}{}
		}
		w.Intervals = make(map[string]struct{}, len(intervals))
		for _, iv := range intervals {
			w.Intervals[iv] = struct{}{}
		}
		w.ThresholdPercent = decimalToFloat(thresholdStr)
		out = append(out, w)
	}
	return out, rows.Err()
}

// GetConfig reads one flat app_configs value.
func (s *Store) GetConfig(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM app_configs WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: get config: %w", err)
	}
	return value, true, nil
}

func decimalToFloat(s string) float64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}

func floatToDecimal(f float64) string {
	return decimal.NewFromFloat(f).String()
}
