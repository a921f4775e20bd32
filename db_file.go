package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileDB keeps users in memory and persists them as a pretty-printed JSON
// array. Every successful insert rewrites the file atomically.
type FileDB struct {
	mu    sync.RWMutex
	path  string
	users []*User
}

func NewFileDB(path string) (*FileDB, error) {
	f := &FileDB{path: path}
	if err := f.Init(); err != nil {
		return nil, err
	}
	return f, nil
}

// Init loads the user file, creating it as an empty array when missing.
func (f *FileDB) Init() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		f.users = nil
		return f.flushLocked()
	}
	if err != nil {
		return fmt.Errorf("read users file: %w", err)
	}

	var users []*User
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &users); err != nil {
			return fmt.Errorf("parse users file %s: %w", f.path, err)
		}
	}
	for _, u := range users {
		u.Email = normalizeEmail(u.Email)
	}
	f.users = users
	return nil
}

func (f *FileDB) CreateUser(ctx context.Context, u *User) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec := newUserRecord(u)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findLocked(func(x *User) bool { return x.Email == rec.Email }) != nil {
		return nil, ErrDuplicateEmail
	}
	f.users = append(f.users, rec)
	if err := f.flushLocked(); err != nil {
		f.users = f.users[:len(f.users)-1]
		return nil, err
	}
	cp := *rec
	return &cp, nil
}

func (f *FileDB) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	email = normalizeEmail(email)
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.findLocked(func(x *User) bool { return x.Email == email }), nil
}

func (f *FileDB) GetUserByID(ctx context.Context, id string) (*User, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.findLocked(func(x *User) bool { return x.ID == id }), nil
}

func (f *FileDB) findLocked(match func(*User) bool) *User {
	for _, u := range f.users {
		if match(u) {
			cp := *u
			return &cp
		}
	}
	return nil
}

// flushLocked writes the user list to a temp file and renames it over the
// target so readers never observe a half-written file.
func (f *FileDB) flushLocked() error {
	users := f.users
	if users == nil {
		users = []*User{}
	}
	b, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return fmt.Errorf("encode users: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create users dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".users-*.json")
	if err != nil {
		return fmt.Errorf("create temp users file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write users file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync users file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close users file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("chmod users file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace users file: %w", err)
	}
	return nil
}

func (f *FileDB) close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flushLocked()
}

func (f *FileDB) ping() bool {
	_, err := os.Stat(f.path)
	return err == nil
}
