package dataservice

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ghaggin/courier/internal/model"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrEmailTaken        = errors.New("email already registered")
	ErrInvalidTransition = errors.New("invalid status transition")
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	confirmed INTEGER NOT NULL DEFAULT 0,
	confirmation_token TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS refresh_tokens (
	token TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	expires_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS password_resets (
	token TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	expires_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	order_number TEXT NOT NULL,
	customer_address TEXT NOT NULL DEFAULT '',
	restaurant_name TEXT NOT NULL DEFAULT '',
	restaurant_id TEXT NOT NULL DEFAULT '',
	customer_id TEXT NOT NULL DEFAULT '',
	driver_id TEXT NOT NULL DEFAULT '',
	total_amount REAL NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'pending',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS orders_status_created ON orders (status, created_at);
CREATE TABLE IF NOT EXISTS order_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	action TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS profiles (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	cpf TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	birth_date INTEGER NOT NULL DEFAULT 0,
	cep TEXT NOT NULL DEFAULT '',
	address TEXT NOT NULL DEFAULT '',
	number TEXT NOT NULL DEFAULT '',
	complement TEXT NOT NULL DEFAULT '',
	neighborhood TEXT NOT NULL DEFAULT '',
	city TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// Store persists users, tokens and the orders/profiles records in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the database at path, creating it and its schema if needed.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	dsn := "file:" + cleanPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY
}

// Users and tokens

func (s *Store) CreateUser(ctx context.Context, u model.User) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, confirmed, confirmation_token, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.Confirmed, u.ConfirmationToken, toMillis(u.CreatedAt),
	)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

const userColumns = `id, email, password_hash, confirmed, confirmation_token, created_at`

func scanUser(row *sql.Row) (model.User, error) {
	var (
		u         model.User
		createdAt int64
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Confirmed, &u.ConfirmationToken, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = fromMillis(createdAt)
	return u, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (model.User, error) {
	return scanUser(s.sqlDB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

func (s *Store) UserByID(ctx context.Context, id string) (model.User, error) {
	return scanUser(s.sqlDB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// ConfirmUser marks the owner of a confirmation token as confirmed.
func (s *Store) ConfirmUser(ctx context.Context, confirmationToken string) (model.User, error) {
	if confirmationToken == "" {
		return model.User{}, ErrNotFound
	}
	u, err := scanUser(s.sqlDB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE confirmation_token = ?`, confirmationToken))
	if err != nil {
		return model.User{}, err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `UPDATE users SET confirmed = 1, confirmation_token = '' WHERE id = ?`, u.ID); err != nil {
		return model.User{}, fmt.Errorf("confirm user: %w", err)
	}
	u.Confirmed = true
	u.ConfirmationToken = ""
	return u, nil
}

func (s *Store) SetPassword(ctx context.Context, userID, hash string) error {
	res, err := s.sqlDB.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, userID)
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	return requireRow(res)
}

func (s *Store) SaveRefreshToken(ctx context.Context, token, userID string, expiresAt time.Time) error {
	_, err := s.sqlDB.ExecContext(ctx, `INSERT INTO refresh_tokens (token, user_id, expires_at) VALUES (?, ?, ?)`, token, userID, toMillis(expiresAt))
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// ConsumeRefreshToken deletes the token and returns its user. Refresh
// tokens are single use.
func (s *Store) ConsumeRefreshToken(ctx context.Context, token string) (string, error) {
	return s.consumeToken(ctx, "refresh_tokens", token)
}

func (s *Store) RevokeRefreshTokens(ctx context.Context, userID string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return nil
}

func (s *Store) SavePasswordReset(ctx context.Context, token, userID string, expiresAt time.Time) error {
	_, err := s.sqlDB.ExecContext(ctx, `INSERT INTO password_resets (token, user_id, expires_at) VALUES (?, ?, ?)`, token, userID, toMillis(expiresAt))
	if err != nil {
		return fmt.Errorf("insert password reset: %w", err)
	}
	return nil
}

func (s *Store) ConsumePasswordReset(ctx context.Context, token string) (string, error) {
	return s.consumeToken(ctx, "password_resets", token)
}

func (s *Store) consumeToken(ctx context.Context, table, token string) (string, error) {
	var (
		userID    string
		expiresAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `DELETE FROM `+table+` WHERE token = ? RETURNING user_id, expires_at`, token).Scan(&userID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("consume %s: %w", table, err)
	}
	if !s.now().Before(fromMillis(expiresAt)) {
		return "", ErrNotFound
	}
	return userID, nil
}

// Orders

const orderColumns = `id, order_number, customer_address, restaurant_name, restaurant_id, customer_id, driver_id, total_amount, status, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (model.Order, error) {
	var (
		o         model.Order
		status    string
		createdAt int64
	)
	if err := row.Scan(&o.ID, &o.OrderNumber, &o.CustomerAddress, &o.RestaurantName, &o.RestaurantID, &o.CustomerID, &o.DriverID, &o.TotalAmount, &status, &createdAt); err != nil {
		return model.Order{}, err
	}
	o.Status = model.OrderStatus(status)
	o.CreatedAt = fromMillis(createdAt)
	return o, nil
}

func (s *Store) InsertOrder(ctx context.Context, o model.Order) error {
	if o.Status == "" {
		o.Status = model.StatusPending
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now()
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO orders (`+orderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.OrderNumber, o.CustomerAddress, o.RestaurantName, o.RestaurantID, o.CustomerID, o.DriverID, o.TotalAmount, string(o.Status), toMillis(o.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (model.Order, error) {
	o, err := scanOrder(s.sqlDB.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, ErrNotFound
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// ListOrders applies filter. driverID scopes MineOnly filters.
func (s *Store) ListOrders(ctx context.Context, driverID string, filter model.OrderFilter) ([]model.Order, error) {
	var (
		where []string
		args  []any
	)
	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.Restaurant != "" {
		where = append(where, "restaurant_name = ?")
		args = append(args, filter.Restaurant)
	}
	if start, end, ok := filter.MonthRange(); ok {
		where = append(where, "created_at >= ? AND created_at < ?")
		args = append(args, toMillis(start), toMillis(end))
	}
	if filter.MineOnly {
		where = append(where, "driver_id = ?")
		args = append(args, driverID)
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if filter.Newest {
		query += " ORDER BY created_at DESC, id"
	} else {
		query += " ORDER BY created_at ASC, id"
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []model.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	if filter.WithHistory {
		for i := range orders {
			if orders[i].History, err = s.orderHistory(ctx, orders[i].ID); err != nil {
				return nil, err
			}
		}
	}
	return orders, nil
}

func (s *Store) orderHistory(ctx context.Context, orderID string) ([]model.OrderEvent, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT action, created_at FROM order_history WHERE order_id = ? ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("order history: %w", err)
	}
	defer rows.Close()

	var events []model.OrderEvent
	for rows.Next() {
		var (
			e         model.OrderEvent
			createdAt int64
		)
		if err := rows.Scan(&e.Action, &createdAt); err != nil {
			return nil, fmt.Errorf("scan order history: %w", err)
		}
		e.CreatedAt = fromMillis(createdAt)
		events = append(events, e)
	}
	return events, rows.Err()
}

// TransitionOrder moves an order along its lifecycle on behalf of a driver,
// recording the move in order_history.
func (s *Store) TransitionOrder(ctx context.Context, orderID, driverID string, to model.OrderStatus) (model.Order, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return model.Order{}, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	o, err := scanOrder(tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, ErrNotFound
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("get order: %w", err)
	}
	if !o.Status.CanTransition(to) {
		return model.Order{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, o.Status, to)
	}
	if o.Status != model.StatusPending && o.DriverID != driverID {
		return model.Order{}, fmt.Errorf("%w: order belongs to another driver", ErrInvalidTransition)
	}

	if to == model.StatusAccepted {
		o.DriverID = driverID
	}
	o.Status = to
	if _, err := tx.ExecContext(ctx, `UPDATE orders SET status = ?, driver_id = ? WHERE id = ?`, string(o.Status), o.DriverID, o.ID); err != nil {
		return model.Order{}, fmt.Errorf("update order: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO order_history (order_id, action, created_at) VALUES (?, ?, ?)`, o.ID, string(to), toMillis(s.now())); err != nil {
		return model.Order{}, fmt.Errorf("insert order history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Order{}, fmt.Errorf("commit: %w", err)
	}
	return o, nil
}

// SetOrderStatus overwrites the status without lifecycle checks.
func (s *Store) SetOrderStatus(ctx context.Context, orderID string, status model.OrderStatus) error {
	res, err := s.sqlDB.ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ?`, string(status), orderID)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return requireRow(res)
}

func (s *Store) CountOrders(ctx context.Context) (int, error) {
	var n int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return n, nil
}

// Profiles

const profileColumns = `id, name, cpf, phone, birth_date, cep, address, number, complement, neighborhood, city, state, created_at, updated_at`

func (s *Store) GetProfile(ctx context.Context, id string) (model.Profile, error) {
	var (
		p                               model.Profile
		birthDate, createdAt, updatedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id).Scan(
		&p.ID, &p.Name, &p.CPF, &p.Phone, &birthDate, &p.CEP, &p.Address, &p.Number,
		&p.Complement, &p.Neighborhood, &p.City, &p.State, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Profile{}, ErrNotFound
	}
	if err != nil {
		return model.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	p.BirthDate = fromMillis(birthDate)
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return p, nil
}

// UpsertProfile writes p, keeping the original created_at on update.
func (s *Store) UpsertProfile(ctx context.Context, p model.Profile) (model.Profile, error) {
	now := s.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	p.CPF = model.DigitsOnly(p.CPF)

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO profiles (`+profileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name, cpf = excluded.cpf, phone = excluded.phone, birth_date = excluded.birth_date,
	cep = excluded.cep, address = excluded.address, number = excluded.number, complement = excluded.complement,
	neighborhood = excluded.neighborhood, city = excluded.city, state = excluded.state, updated_at = excluded.updated_at`,
		p.ID, p.Name, p.CPF, p.Phone, toMillis(p.BirthDate), p.CEP, p.Address, p.Number,
		p.Complement, p.Neighborhood, p.City, p.State, toMillis(p.CreatedAt), toMillis(p.UpdatedAt),
	)
	if err != nil {
		return model.Profile{}, fmt.Errorf("upsert profile: %w", err)
	}
	return s.GetProfile(ctx, p.ID)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
