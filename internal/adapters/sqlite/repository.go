package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cryptoAlgoBot/internal/domain"
	"cryptoAlgoBot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.OrderProvider, ports.TradeProvider and ports.BalanceProvider
// interfaces using SQLite. Decimals are stored as TEXT to keep them exact and times as Unix
// milliseconds so they compare correctly in SQL.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/algo_bot.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Ticks of all symbols share this handle; a single connection serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS orders (
		symbol TEXT NOT NULL,
		order_id INTEGER NOT NULL,
		client_order_id TEXT NOT NULL DEFAULT '',
		price TEXT NOT NULL,
		original_quantity TEXT NOT NULL,
		executed_quantity TEXT NOT NULL,
		cummulative_quote_quantity TEXT NOT NULL,
		status TEXT NOT NULL,
		time_in_force TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL,
		side TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (symbol, order_id)
	);

	CREATE TABLE IF NOT EXISTS trades (
		symbol TEXT NOT NULL,
		trade_id INTEGER NOT NULL,
		order_id INTEGER NOT NULL,
		price TEXT NOT NULL,
		quantity TEXT NOT NULL,
		quote_quantity TEXT NOT NULL,
		commission TEXT NOT NULL,
		commission_asset TEXT NOT NULL DEFAULT '',
		executed_at INTEGER NOT NULL,
		is_buyer INTEGER NOT NULL,
		is_maker INTEGER NOT NULL,
		PRIMARY KEY (symbol, trade_id)
	);

	CREATE TABLE IF NOT EXISTS balances (
		asset TEXT PRIMARY KEY,
		free TEXT NOT NULL,
		locked TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_orders_symbol_status ON orders (symbol, status);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol_executed_at ON trades (symbol, executed_at);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- OrderProvider Implementation ---

const orderColumns = `symbol, order_id, client_order_id, price, original_quantity, executed_quantity,
	cummulative_quote_quantity, status, time_in_force, type, side, created_at, updated_at`

// SetOrder inserts or replaces an order keyed by symbol and order ID. Cancel responses carry
// no creation time or client ID, so empty values keep the stored ones.
func (r *Repository) SetOrder(ctx context.Context, o domain.OrderQueryResult) error {
	const query = `
	INSERT INTO orders (` + orderColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (symbol, order_id) DO UPDATE SET
		client_order_id = CASE WHEN excluded.client_order_id = '' THEN orders.client_order_id ELSE excluded.client_order_id END,
		price = excluded.price,
		original_quantity = excluded.original_quantity,
		executed_quantity = excluded.executed_quantity,
		cummulative_quote_quantity = excluded.cummulative_quote_quantity,
		status = excluded.status,
		time_in_force = excluded.time_in_force,
		type = excluded.type,
		side = excluded.side,
		created_at = CASE WHEN excluded.created_at = 0 THEN orders.created_at ELSE excluded.created_at END,
		updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		o.Symbol, o.OrderID, o.ClientOrderID, o.Price, o.OriginalQuantity, o.ExecutedQuantity,
		o.CummulativeQuoteQuantity, string(o.Status), string(o.TimeInForce), string(o.Type), string(o.Side),
		toMillis(o.Time), toMillis(o.UpdateTime))
	if err != nil {
		return fmt.Errorf("failed to upsert order %d of %s: %w: %w", o.OrderID, o.Symbol, ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Order stored", map[string]interface{}{"orderID": o.OrderID, "symbol": o.Symbol, "status": string(o.Status)})
	return nil
}

// GetOrdersByFilter returns the orders of a symbol ordered by ID.
func (r *Repository) GetOrdersByFilter(ctx context.Context, symbol string, side *domain.OrderSide, transientOnly bool, significantOnly *bool) ([]domain.OrderQueryResult, error) {
	var (
		where = []string{"symbol = ?"}
		args  = []interface{}{symbol}
	)
	if side != nil {
		where = append(where, "side = ?")
		args = append(args, string(*side))
	}
	if transientOnly {
		where = append(where, "status IN (?, ?, ?)")
		args = append(args, string(domain.OrderStatusNew), string(domain.OrderStatusPartiallyFilled), string(domain.OrderStatusPendingCancel))
	}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + strings.Join(where, " AND ") + ` ORDER BY order_id`
	orders, err := r.queryOrders(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders of %s: %w", symbol, err)
	}

	// Executed quantity is stored as TEXT; filter it exactly here rather than in SQL.
	if significantOnly == nil {
		return orders, nil
	}
	filtered := orders[:0]
	for _, o := range orders {
		if o.IsSignificant() == *significantOnly {
			filtered = append(filtered, o)
		}
	}
	return filtered, nil
}

// GetOrders returns all orders of a symbol created at or after since, ordered by ID.
func (r *Repository) GetOrders(ctx context.Context, symbol string, since time.Time) ([]domain.OrderQueryResult, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE symbol = ? AND created_at >= ? ORDER BY order_id`
	orders, err := r.queryOrders(ctx, query, symbol, toMillis(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query orders of %s: %w", symbol, err)
	}
	return orders, nil
}

// GetLastOrderID returns the highest known order ID of a symbol, zero if none.
func (r *Repository) GetLastOrderID(ctx context.Context, symbol string) (int64, error) {
	const query = `SELECT COALESCE(MAX(order_id), 0) FROM orders WHERE symbol = ?`
	var id int64
	if err := r.db.QueryRowContext(ctx, query, symbol).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to get last order ID of %s: %w: %w", symbol, ports.ErrQueryFailed, err)
	}
	return id, nil
}

// GetOldestOpenOrderID returns the lowest ID among the transient orders of a symbol, zero if none.
func (r *Repository) GetOldestOpenOrderID(ctx context.Context, symbol string) (int64, error) {
	const query = `SELECT COALESCE(MIN(order_id), 0) FROM orders WHERE symbol = ? AND status IN (?, ?, ?)`
	var id int64
	err := r.db.QueryRowContext(ctx, query, symbol,
		string(domain.OrderStatusNew), string(domain.OrderStatusPartiallyFilled), string(domain.OrderStatusPendingCancel)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to get oldest open order ID of %s: %w: %w", symbol, ports.ErrQueryFailed, err)
	}
	return id, nil
}

func (r *Repository) queryOrders(ctx context.Context, query string, args ...interface{}) ([]domain.OrderQueryResult, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	orders := make([]domain.OrderQueryResult, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order rows: %w", err)
	}
	return orders, nil
}

// --- TradeProvider Implementation ---

const tradeColumns = `symbol, trade_id, order_id, price, quantity, quote_quantity, commission,
	commission_asset, executed_at, is_buyer, is_maker`

// SetTrades inserts or replaces trades keyed by symbol and trade ID in one transaction.
func (r *Repository) SetTrades(ctx context.Context, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	const query = `
	INSERT INTO trades (` + tradeColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (symbol, trade_id) DO UPDATE SET
		order_id = excluded.order_id,
		price = excluded.price,
		quantity = excluded.quantity,
		quote_quantity = excluded.quote_quantity,
		commission = excluded.commission,
		commission_asset = excluded.commission_asset,
		executed_at = excluded.executed_at,
		is_buyer = excluded.is_buyer,
		is_maker = excluded.is_maker`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin trade transaction: %w: %w", ports.ErrDBConnection, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare trade upsert: %w", err)
	}
	defer stmt.Close()

	for _, t := range trades {
		_, err := stmt.ExecContext(ctx,
			t.Symbol, t.ID, t.OrderID, t.Price, t.Quantity, t.QuoteQuantity, t.Commission,
			t.CommissionAsset, toMillis(t.Time), t.IsBuyer, t.IsMaker)
		if err != nil {
			return fmt.Errorf("failed to upsert trade %d of %s: %w: %w", t.ID, t.Symbol, ports.ErrUpdateFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trades: %w: %w", ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Trades stored", map[string]interface{}{"count": len(trades), "symbol": trades[0].Symbol})
	return nil
}

// GetTrades returns the trades of a symbol executed at or after since, ordered by ID.
func (r *Repository) GetTrades(ctx context.Context, symbol string, since time.Time) ([]domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE symbol = ? AND executed_at >= ? ORDER BY trade_id`
	trades, err := r.queryTrades(ctx, query, symbol, toMillis(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query trades of %s: %w", symbol, err)
	}
	return trades, nil
}

// GetAllTrades returns every known trade ordered by symbol and ID.
func (r *Repository) GetAllTrades(ctx context.Context) ([]domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades ORDER BY symbol, trade_id`
	trades, err := r.queryTrades(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query all trades: %w", err)
	}
	return trades, nil
}

// GetLastTradeID returns the highest known trade ID of a symbol, zero if none.
func (r *Repository) GetLastTradeID(ctx context.Context, symbol string) (int64, error) {
	const query = `SELECT COALESCE(MAX(trade_id), 0) FROM trades WHERE symbol = ?`
	var id int64
	if err := r.db.QueryRowContext(ctx, query, symbol).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to get last trade ID of %s: %w: %w", symbol, ports.ErrQueryFailed, err)
	}
	return id, nil
}

func (r *Repository) queryTrades(ctx context.Context, query string, args ...interface{}) ([]domain.Trade, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	trades := make([]domain.Trade, 0)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

// --- BalanceProvider Implementation ---

// TryGetBalance returns the balance of an asset and whether it is known.
func (r *Repository) TryGetBalance(ctx context.Context, asset string) (domain.Balance, bool, error) {
	const query = `SELECT asset, free, locked, updated_at FROM balances WHERE asset = ?`

	var (
		b       domain.Balance
		updated int64
	)
	err := r.db.QueryRowContext(ctx, query, asset).Scan(&b.Asset, &b.Free, &b.Locked, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Balance{}, false, nil
		}
		return domain.Balance{}, false, fmt.Errorf("failed to query balance of %s: %w: %w", asset, ports.ErrQueryFailed, err)
	}
	b.UpdatedTime = fromMillis(updated)
	return b, true, nil
}

// GetBalanceOrZero returns the balance of an asset or a zero balance.
func (r *Repository) GetBalanceOrZero(ctx context.Context, asset string) (domain.Balance, error) {
	b, ok, err := r.TryGetBalance(ctx, asset)
	if err != nil {
		return domain.Balance{}, err
	}
	if !ok {
		return domain.Balance{Asset: asset, Free: decimal.Zero, Locked: decimal.Zero}, nil
	}
	return b, nil
}

// SetBalances inserts or replaces balances keyed by asset in one transaction.
func (r *Repository) SetBalances(ctx context.Context, balances []domain.Balance) error {
	if len(balances) == 0 {
		return nil
	}

	const query = `
	INSERT INTO balances (asset, free, locked, updated_at) VALUES (?, ?, ?, ?)
	ON CONFLICT (asset) DO UPDATE SET free = excluded.free, locked = excluded.locked, updated_at = excluded.updated_at`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin balance transaction: %w: %w", ports.ErrDBConnection, err)
	}
	defer tx.Rollback()

	for _, b := range balances {
		updated := b.UpdatedTime
		if updated.IsZero() {
			updated = time.Now()
		}
		if _, err := tx.ExecContext(ctx, query, b.Asset, b.Free, b.Locked, toMillis(updated)); err != nil {
			return fmt.Errorf("failed to upsert balance of %s: %w: %w", b.Asset, ports.ErrUpdateFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit balances: %w: %w", ports.ErrUpdateFailed, err)
	}
	return nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanOrder scans a row into a domain.OrderQueryResult.
func scanOrder(s scanner) (domain.OrderQueryResult, error) {
	var (
		o                            domain.OrderQueryResult
		status, tif, orderType, side string
		createdAt, updatedAt         int64
	)
	err := s.Scan(
		&o.Symbol, &o.OrderID, &o.ClientOrderID, &o.Price, &o.OriginalQuantity, &o.ExecutedQuantity,
		&o.CummulativeQuoteQuantity, &status, &tif, &orderType, &side, &createdAt, &updatedAt)
	if err != nil {
		return domain.OrderQueryResult{}, err
	}
	o.Status = domain.OrderStatus(status)
	o.TimeInForce = domain.TimeInForce(tif)
	o.Type = domain.OrderType(orderType)
	o.Side = domain.OrderSide(side)
	o.Time = fromMillis(createdAt)
	o.UpdateTime = fromMillis(updatedAt)
	return o, nil
}

// scanTrade scans a row into a domain.Trade.
func scanTrade(s scanner) (domain.Trade, error) {
	var (
		t          domain.Trade
		executedAt int64
	)
	err := s.Scan(
		&t.Symbol, &t.ID, &t.OrderID, &t.Price, &t.Quantity, &t.QuoteQuantity, &t.Commission,
		&t.CommissionAsset, &executedAt, &t.IsBuyer, &t.IsMaker)
	if err != nil {
		return domain.Trade{}, err
	}
	t.Time = fromMillis(executedAt)
	return t, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
