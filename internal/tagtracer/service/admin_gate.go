package service

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAdminDenied   = errors.New("invalid admin password")
	ErrAdminDisabled = errors.New("tag writing is disabled")
)

// AdminPolicy configures who may write tags.
type AdminPolicy struct {
	// Open skips the password check entirely.
	Open bool

	// PasswordHash is a bcrypt hash.  Empty with Open=false disables writes.
	PasswordHash string
}

// AdminGate guards the administrative write mode.
type AdminGate struct {
	policy AdminPolicy
}

func NewAdminGate(policy AdminPolicy) *AdminGate {
	return &AdminGate{policy: policy}
}

// HashAdminPassword returns a bcrypt hash suitable for AdminPolicy.
func HashAdminPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash admin password: %w", err)
	}
	return string(h), nil
}

func (g *AdminGate) Check(password string) error {
	if g.policy.Open {
		return nil
	}
	if g.policy.PasswordHash == "" {
		return ErrAdminDisabled
	}
	err := bcrypt.CompareHashAndPassword([]byte(g.policy.PasswordHash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrAdminDenied
	}
	if err != nil {
		return fmt.Errorf("admin gate: %w", err)
	}
	return nil
}
