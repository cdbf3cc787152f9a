// Package store persists member records in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned when no member has the requested identifier.
	ErrNotFound = errors.New("member not found")
	// ErrDuplicateIdentifier is returned by Insert when the member identifier
	// is already taken.
	ErrDuplicateIdentifier = errors.New("member identifier already exists")
)

// Member represents a single registered member.
type Member struct {
	ID         int64     `json:"-"`
	MemberID   string    `json:"member_id"`
	Name       string    `json:"name"`
	Contact    string    `json:"contact"`
	BloodGroup string    `json:"blood_group"`
	CreatedAt  time.Time `json:"created_at"`
}

// MemberStore manages SQLite storage for members.
type MemberStore struct {
	db *sql.DB
}

const createMembersTable = `
CREATE TABLE IF NOT EXISTS members (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    member_id TEXT UNIQUE NOT NULL,
    name TEXT NOT NULL,
    contact TEXT NOT NULL,
    blood_group TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now'))
);
`

const createIndexes = `
CREATE INDEX IF NOT EXISTS idx_members_created_at ON members(created_at);
`

// NewMemberStore opens (or creates) the SQLite database at dbPath, initialises
// the schema and returns a ready-to-use MemberStore.
func NewMemberStore(dbPath string) (*MemberStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	for _, stmt := range []string{createMembersTable, createIndexes} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec schema statement: %w", err)
		}
	}

	return &MemberStore{db: db}, nil
}

// NewMemberStoreFromDB wraps an already opened database. The schema is
// assumed to exist.
func NewMemberStoreFromDB(db *sql.DB) *MemberStore {
	return &MemberStore{db: db}
}

// FindByIdentifier returns the member with the given identifier, or
// ErrNotFound.
func (s *MemberStore) FindByIdentifier(ctx context.Context, memberID string) (*Member, error) {
	const query = `
		SELECT id, member_id, name, contact, blood_group, created_at
		FROM members
		WHERE member_id = ?
	`

	m, err := scanMember(s.db.QueryRowContext(ctx, query, memberID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find member %s: %w", memberID, err)
	}
	return m, nil
}

// Insert stores a new member. The sequence number and creation time are
// assigned by the database and returned on the stored copy. A taken member
// identifier yields ErrDuplicateIdentifier.
func (s *MemberStore) Insert(ctx context.Context, m *Member) (*Member, error) {
	const query = `
		INSERT INTO members (member_id, name, contact, blood_group)
		VALUES (?, ?, ?, ?)
		RETURNING id, member_id, name, contact, blood_group, created_at
	`

	stored, err := scanMember(s.db.QueryRowContext(ctx, query, m.MemberID, m.Name, m.Contact, m.BloodGroup))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert member %s: %w", m.MemberID, ErrDuplicateIdentifier)
		}
		return nil, fmt.Errorf("insert member %s: %w", m.MemberID, err)
	}
	return stored, nil
}

// List returns all members ordered by creation time descending (newest first).
func (s *MemberStore) List(ctx context.Context) ([]Member, error) {
	const query = `
		SELECT id, member_id, name, contact, blood_group, created_at
		FROM members
		ORDER BY created_at DESC, id DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member row: %w", err)
		}
		members = append(members, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate member rows: %w", err)
	}
	return members, nil
}

// Count returns the number of stored members.
func (s *MemberStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM members`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return n, nil
}

// Close closes the underlying database connection.
func (s *MemberStore) Close() error {
	return s.db.Close()
}

// --- helpers ----------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (*Member, error) {
	var m Member
	var created any
	if err := row.Scan(&m.ID, &m.MemberID, &m.Name, &m.Contact, &m.BloodGroup, &created); err != nil {
		return nil, err
	}
	t, err := parseTimestamp(created)
	if err != nil {
		return nil, err
	}
	m.CreatedAt = t
	return &m, nil
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp accepts the representations SQLite drivers hand back for a
// TIMESTAMP column.
func parseTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case int64:
		return time.Unix(t, 0).UTC(), nil
	case []byte:
		return parseTimestamp(string(t))
	case string:
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognised timestamp %q", t)
	case nil:
		return time.Time{}, nil
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return true
		}
		if code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE") {
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
