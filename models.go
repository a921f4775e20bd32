package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User represents a registered dashboard user
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Password  string    `json:"password"` // bcrypt hash, never the plaintext
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalJSON accepts numeric ids as written by older users.json files
// and keeps their decimal string form.
func (u *User) UnmarshalJSON(b []byte) error {
	type plain User
	aux := struct {
		*plain
		ID json.RawMessage `json:"id"`
	}{plain: (*plain)(u)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}

	raw := bytes.TrimSpace(aux.ID)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		u.ID = ""
	case raw[0] == '"':
		return json.Unmarshal(raw, &u.ID)
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return fmt.Errorf("user id: %w", err)
		}
		u.ID = n.String()
	}
	return nil
}

// Claims is the identity carried by an access token
type Claims struct {
	UserID string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Product is the normalized product record served to the dashboard
type Product struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Price float64 `json:"price"`
	Stock float64 `json:"stock"`
	Image *string `json:"image"`
	Sold  float64 `json:"sold"`
}

// Source tells the client where a product list came from
type Source string

const (
	SourceCache  Source = "cache"
	SourceRemote Source = "remote"
)
