// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"net/http"
	"net/url"
)

const MaxUsernameLen = 36

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

// User is the identity the session stack attaches to a connection.
type User struct {
	ClientToken string `json:"client_token"`
	Username    string `json:"username"`
}

// Anonymous is used when no session identity is available.
func Anonymous(token string) *User {
	return &User{ClientToken: token, Username: "guest"}
}

func (u *User) SetUsername(username string) error {
	if len(username) == 0 {
		return ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	u.Username = username
	return nil
}

// Scope is the read-only context of a connection: what the routing table and
// the middleware stack learned about it before the first connect event.
type Scope struct {
	Transport TransportKind
	Route     string
	Path      string
	Query     url.Values
	Header    http.Header
	User      *User
	Session   map[string]any
}
