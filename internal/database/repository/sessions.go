package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSessionNotFound      = errors.New("import session not found")
	ErrSessionNotRevertible = errors.New("import session cannot be reverted")
)

// lookupChunk bounds the number of bound parameters per IN query.
const lookupChunk = 500

// SessionRepo is the storage side of the import pipeline: fingerprint
// lookups, the atomic session commit and rollback.
type SessionRepo struct {
	db *sql.DB
}

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

// ExistingScopedHashes returns the subset of hashes already stored.
func (r *SessionRepo) ExistingScopedHashes(ctx context.Context, hashes []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	err := r.inChunks(ctx, `SELECT scoped_hash FROM transactions WHERE scoped_hash IN (%s)`, hashes, func(rows *sql.Rows) error {
		var h string
		if err := rows.Scan(&h); err != nil {
			return err
		}
		out[h] = struct{}{}
		return nil
	})
	return out, err
}

// UnscopedHashOwners maps each stored unscoped hash to the names of the
// accounts it appears under.
func (r *SessionRepo) UnscopedHashOwners(ctx context.Context, hashes []string) (map[string][]string, error) {
	out := make(map[string][]string)
	query := `SELECT DISTINCT t.unscoped_hash, a.name FROM transactions t
	JOIN accounts a ON a.id = t.account_id
	WHERE t.unscoped_hash IN (%s) ORDER BY a.name`
	err := r.inChunks(ctx, query, hashes, func(rows *sql.Rows) error {
		var h, name string
		if err := rows.Scan(&h, &name); err != nil {
			return err
		}
		out[h] = append(out[h], name)
		return nil
	})
	return out, err
}

func (r *SessionRepo) inChunks(ctx context.Context, query string, keys []string, each func(*sql.Rows) error) error {
	for start := 0; start < len(keys); start += lookupChunk {
		end := min(start+lookupChunk, len(keys))
		chunk := keys[start:end]
		args := make([]any, len(chunk))
		for i, k := range chunk {
			args[i] = k
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		if err := r.scanAll(ctx, fmt.Sprintf(query, placeholders), args, each); err != nil {
			return err
		}
	}
	return nil
}

func (r *SessionRepo) scanAll(ctx context.Context, query string, args []any, each func(*sql.Rows) error) error {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := each(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// PendingRow is a transaction to persist, tagged with the position of the
// session file it came from.
type PendingRow struct {
	File        int
	Transaction Transaction
}

// SessionCommit is everything one batch writes.
type SessionCommit struct {
	Session  ImportSession
	Accounts []Account
	Rows     []PendingRow
}

// CommitOutcome reports rows that lost a race: their scoped hash was stored
// by someone else between lookup and insert. Counts are per file position.
type CommitOutcome struct {
	Inserted       int
	LateDuplicates map[int]int
}

// Commit writes the session, its files, accounts and rows in one database
// transaction. Either everything is stored or nothing is. Late duplicates
// are folded into the stored counts.
func (r *SessionRepo) Commit(ctx context.Context, c SessionCommit) (CommitOutcome, error) {
	out := CommitOutcome{LateDuplicates: map[int]int{}}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return out, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, a := range c.Accounts {
		if err := upsertAccount(ctx, tx, a); err != nil {
			return out, fmt.Errorf("upsert account %q: %w", a.Name, err)
		}
	}
	s := c.Session
	if _, err := tx.ExecContext(ctx, `
	INSERT INTO import_sessions(
	 id, status, parsed, persisted, duplicate_in_file, duplicate_cross_file, duplicate_existing,
	 cross_account_warnings, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, SessionCompleted, s.Counts.Parsed, s.Counts.Persisted, s.Counts.DuplicateInFile,
		s.Counts.DuplicateCrossFile, s.Counts.DuplicateExisting, s.CrossAccountWarnings, s.CreatedAt); err != nil {
		return out, fmt.Errorf("insert session: %w", err)
	}
	for _, f := range s.Files {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO import_session_files(
		 session_id, position, filename, format, account_label, parsed, persisted,
		 duplicate_in_file, duplicate_cross_file, duplicate_existing, error_count)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.ID, f.Position, f.Filename, f.Format, f.AccountLabel, f.Counts.Parsed, f.Counts.Persisted,
			f.Counts.DuplicateInFile, f.Counts.DuplicateCrossFile, f.Counts.DuplicateExisting, f.ErrorCount); err != nil {
			return out, fmt.Errorf("insert session file %s: %w", f.Filename, err)
		}
	}
	for _, row := range c.Rows {
		t := row.Transaction
		t.SessionID = &s.ID
		inserted, err := insertTransaction(ctx, tx, t)
		if err != nil {
			return out, fmt.Errorf("insert transaction: %w", err)
		}
		if inserted {
			out.Inserted++
			continue
		}
		out.LateDuplicates[row.File]++
	}
	for pos, n := range out.LateDuplicates {
		if _, err := tx.ExecContext(ctx, `
		UPDATE import_session_files
		SET persisted = persisted - ?, duplicate_existing = duplicate_existing + ?
		WHERE session_id = ? AND position = ?`, n, n, s.ID, pos); err != nil {
			return out, fmt.Errorf("adjust session file counts: %w", err)
		}
	}
	if late := len(c.Rows) - out.Inserted; late > 0 {
		if _, err := tx.ExecContext(ctx, `
		UPDATE import_sessions
		SET persisted = persisted - ?, duplicate_existing = duplicate_existing + ?
		WHERE id = ?`, late, late, s.ID); err != nil {
			return out, fmt.Errorf("adjust session counts: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return CommitOutcome{LateDuplicates: map[int]int{}}, err
	}
	return out, nil
}

// Revert deletes every transaction owned by the session and marks it
// reverted, atomically. Reverting a reverted session changes nothing.
func (r *SessionRepo) Revert(ctx context.Context, id string) (ImportSession, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return ImportSession{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM import_sessions WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ImportSession{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return ImportSession{}, err
	}
	switch status {
	case SessionReverted:
		if err := tx.Commit(); err != nil {
			return ImportSession{}, err
		}
		return r.Get(ctx, id)
	case SessionCompleted:
	default:
		return ImportSession{}, fmt.Errorf("%w: status %s", ErrSessionNotRevertible, status)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE session_id = ?`, id); err != nil {
		return ImportSession{}, fmt.Errorf("delete session transactions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE import_sessions SET status = ?, reverted_at = CURRENT_TIMESTAMP WHERE id = ?`, SessionReverted, id); err != nil {
		return ImportSession{}, fmt.Errorf("mark session reverted: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return ImportSession{}, err
	}
	return r.Get(ctx, id)
}

const sessionColumns = `id, status, parsed, persisted, duplicate_in_file, duplicate_cross_file,
 duplicate_existing, cross_account_warnings, created_at, reverted_at`

// Get loads a session and its files.
func (r *SessionRepo) Get(ctx context.Context, id string) (ImportSession, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM import_sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ImportSession{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return ImportSession{}, err
	}
	files, err := r.files(ctx, id)
	if err != nil {
		return ImportSession{}, err
	}
	s.Files = files
	return s, nil
}

// List returns the most recent sessions first, without their files.
func (r *SessionRepo) List(ctx context.Context, limit int) ([]ImportSession, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM import_sessions ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ImportSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CompletedIDs returns the ids of sessions that still own their
// transactions, oldest first.
func (r *SessionRepo) CompletedIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM import_sessions WHERE status = ? ORDER BY created_at, id`, SessionCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// CountTransactions returns how many transactions the session still owns.
func (r *SessionRepo) CountTransactions(ctx context.Context, id string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE session_id = ?`, id).Scan(&n)
	return n, err
}

func (r *SessionRepo) files(ctx context.Context, id string) ([]ImportSessionFile, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT position, filename, format, account_label, parsed, persisted, duplicate_in_file,
	 duplicate_cross_file, duplicate_existing, error_count
	FROM import_session_files WHERE session_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ImportSessionFile
	for rows.Next() {
		var f ImportSessionFile
		if err := rows.Scan(&f.Position, &f.Filename, &f.Format, &f.AccountLabel, &f.Counts.Parsed,
			&f.Counts.Persisted, &f.Counts.DuplicateInFile, &f.Counts.DuplicateCrossFile,
			&f.Counts.DuplicateExisting, &f.ErrorCount); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanSession(row scanner) (ImportSession, error) {
	var s ImportSession
	var reverted sql.NullTime
	if err := row.Scan(&s.ID, &s.Status, &s.Counts.Parsed, &s.Counts.Persisted, &s.Counts.DuplicateInFile,
		&s.Counts.DuplicateCrossFile, &s.Counts.DuplicateExisting, &s.CrossAccountWarnings,
		&s.CreatedAt, &reverted); err != nil {
		return ImportSession{}, err
	}
	if reverted.Valid {
		s.RevertedAt = &reverted.Time
	}
	return s, nil
}
