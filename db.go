package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB is the credential store. CreateUser must reject a second user with the
// same email atomically, returning ErrDuplicateEmail.
type DB interface {
	Init() error
	CreateUser(ctx context.Context, u *User) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
}

// normalizeEmail is applied before every store write and lookup, which makes
// email uniqueness case-insensitive.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// newUserRecord copies u, assigning the id and creation time the store owns.
func newUserRecord(u *User) *User {
	return &User{
		ID:        uuid.NewString(),
		Name:      u.Name,
		Email:     normalizeEmail(u.Email),
		Password:  u.Password,
		Phone:     u.Phone,
		CreatedAt: time.Now().UTC(),
	}
}

// Memory DB
type MemDB struct {
	mu    sync.RWMutex
	users map[string]*User // keyed by normalized email
	byID  map[string]*User
}

func NewMemoryDB() *MemDB {
	return &MemDB{users: map[string]*User{}, byID: map[string]*User{}}
}

func (m *MemDB) Init() error { return nil }

func (m *MemDB) CreateUser(ctx context.Context, u *User) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec := newUserRecord(u)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[rec.Email]; ok {
		return nil, ErrDuplicateEmail
	}
	m.users[rec.Email] = rec
	m.byID[rec.ID] = rec
	cp := *rec
	return &cp, nil
}

func (m *MemDB) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[normalizeEmail(email)]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *MemDB) GetUserByID(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

// SQLite DB
type SQLiteDB struct {
	db   *sql.DB
	path string
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// a single connection keeps writers from tripping over SQLITE_BUSY
	d.SetMaxOpenConns(1)
	s := &SQLiteDB{db: d, path: path}
	if err := s.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteDB) Init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (id TEXT PRIMARY KEY, name TEXT NOT NULL, email TEXT NOT NULL UNIQUE, password TEXT NOT NULL, phone TEXT NOT NULL DEFAULT '', created_at TEXT NOT NULL);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteDB) CreateUser(ctx context.Context, u *User) (*User, error) {
	rec := newUserRecord(u)
	_, err := s.db.ExecContext(ctx, `INSERT INTO users(id,name,email,password,phone,created_at) VALUES(?,?,?,?,?,?)`,
		rec.ID, rec.Name, rec.Email, rec.Password, rec.Phone, rec.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return rec, nil
}

func (s *SQLiteDB) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,name,email,password,phone,created_at FROM users WHERE email = ?`, normalizeEmail(email))
	return scanSQLiteUser(row)
}

func (s *SQLiteDB) GetUserByID(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,name,email,password,phone,created_at FROM users WHERE id = ?`, id)
	return scanSQLiteUser(row)
}

func isSQLiteUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	if se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
}

func scanSQLiteUser(row *sql.Row) (*User, error) {
	var u User
	var created string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Password, &u.Phone, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, fmt.Errorf("user %s: bad created_at %q: %w", u.ID, created, err)
	}
	u.CreatedAt = t
	return &u, nil
}

// lifecycle helpers
func (m *MemDB) close() error { return nil }
func (m *MemDB) ping() bool   { return true }

func (s *SQLiteDB) close() error { return s.db.Close() }
func (s *SQLiteDB) ping() bool   { return s.db.Ping() == nil }
