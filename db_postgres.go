package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// uniqueViolation is the Postgres SQLSTATE for a UNIQUE constraint failure.
const uniqueViolation = "23505"

type PostgresDB struct {
	db  *sql.DB
	dsn string
}

func NewPostgresDB(dsn string) (*PostgresDB, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	p := &PostgresDB{db: d, dsn: dsn}
	if err := p.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresDB) Init() error {
	// rely on migrations to create tables; just verify connectivity
	if err := p.db.Ping(); err != nil {
		return err
	}
	return nil
}

func (p *PostgresDB) CreateUser(ctx context.Context, u *User) (*User, error) {
	rec := newUserRecord(u)
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO users(id,name,email,password,phone,created_at) VALUES($1,$2,$3,$4,$5,$6) RETURNING created_at`,
		rec.ID, rec.Name, rec.Email, rec.Password, rec.Phone, rec.CreatedAt).Scan(&rec.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return rec, nil
}

func (p *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := p.db.QueryRowContext(ctx, `SELECT id,name,email,password,phone,created_at FROM users WHERE email = $1`, normalizeEmail(email))
	return scanPostgresUser(row)
}

func (p *PostgresDB) GetUserByID(ctx context.Context, id string) (*User, error) {
	// the column is UUID typed; anything else cannot match
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	row := p.db.QueryRowContext(ctx, `SELECT id,name,email,password,phone,created_at FROM users WHERE id = $1`, id)
	return scanPostgresUser(row)
}

func scanPostgresUser(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Password, &u.Phone, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (p *PostgresDB) close() error { return p.db.Close() }
func (p *PostgresDB) ping() bool   { return p.db.Ping() == nil }
