// Package auth supplies bearer tokens for backend requests.
package auth

import (
	"fmt"
	"os"
)

// TokenProvider yields the bearer token attached to each backend request.
// Token is called per request, so providers may rotate tokens between calls.
type TokenProvider interface {
	Token() (string, error)
}

// Static is a fixed token. An empty Static sends no Authorization header.
type Static string

// Token returns the fixed token.
func (s Static) Token() (string, error) { return string(s), nil }

// Env reads the token from an environment variable on every call.
type Env struct {
	// Var is the environment variable name (required).
	Var string
}

// Token returns the variable's current value.
// Returns an error when the variable is unset or empty.
func (e Env) Token() (string, error) {
	v := os.Getenv(e.Var)
	if v == "" {
		return "", fmt.Errorf("auth: %s is not set", e.Var)
	}
	return v, nil
}

// Anonymous sends no Authorization header.
var Anonymous TokenProvider = Static("")

// Verify implementations.
var (
	_ TokenProvider = Static("")
	_ TokenProvider = Env{}
)
