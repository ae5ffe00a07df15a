package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// TransactionFilters defines list filters.
type TransactionFilters struct {
	AccountID  string
	SessionID  string
	CategoryID string
	Month      time.Time // use first day of month; zero time = no month filter
	Search     string
}

// TransactionRepo handles transactions.
type TransactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{db: db} }

const transactionColumns = `id, account_id, session_id, external_id, date, amount, raw_description, merchant_name,
 category_id, origin_format, scoped_hash, unscoped_hash, created_at, updated_at`

// Insert stores a transaction. It reports false when a row with the same
// scoped hash already exists; that is not an error.
func (r *TransactionRepo) Insert(ctx context.Context, t Transaction) (bool, error) {
	return insertTransaction(ctx, r.db, t)
}

func insertTransaction(ctx context.Context, ex execer, t Transaction) (bool, error) {
	res, err := ex.ExecContext(ctx, `
	INSERT INTO transactions(
	 id, account_id, session_id, external_id, date, amount, raw_description, merchant_name,
	 category_id, origin_format, scoped_hash, unscoped_hash, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(scoped_hash) DO NOTHING;
	`,
		t.ID, t.AccountID, t.SessionID, t.ExternalID, t.Date, t.AmountCents, t.RawDescription,
		t.MerchantName, t.CategoryID, t.OriginFormat, t.ScopedHash, t.UnscopedHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *TransactionRepo) UpdateCategory(ctx context.Context, id string, categoryID *string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE transactions SET category_id = ?, updated_at=CURRENT_TIMESTAMP WHERE id = ?`, categoryID, id)
	return err
}

func (r *TransactionRepo) List(ctx context.Context, f TransactionFilters) ([]Transaction, error) {
	var where []string
	var args []interface{}

	if f.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.CategoryID != "" {
		where = append(where, "category_id = ?")
		args = append(args, f.CategoryID)
	}
	if !f.Month.IsZero() {
		start := time.Date(f.Month.Year(), f.Month.Month(), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 1, 0)
		where = append(where, "date >= ? AND date < ?")
		args = append(args, start, end)
	}
	if f.Search != "" {
		where = append(where, "raw_description LIKE ?")
		args = append(args, "%"+f.Search+"%")
	}

	query := "SELECT " + transactionColumns + " FROM transactions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC, created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Count returns the number of stored transactions.
func (r *TransactionRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n)
	return n, err
}

// scanTransaction handles nullable fields for both Row and Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row scanner) (Transaction, error) {
	var t Transaction
	var session, external, merchant, category sql.NullString
	if err := row.Scan(&t.ID, &t.AccountID, &session, &external, &t.Date, &t.AmountCents,
		&t.RawDescription, &merchant, &category, &t.OriginFormat, &t.ScopedHash, &t.UnscopedHash,
		&t.CreatedAt, &t.UpdatedAt); err != nil {
		return Transaction{}, err
	}
	if session.Valid {
		t.SessionID = &session.String
	}
	if external.Valid {
		t.ExternalID = &external.String
	}
	if merchant.Valid {
		t.MerchantName = &merchant.String
	}
	if category.Valid {
		t.CategoryID = &category.String
	}
	return t, nil
}
