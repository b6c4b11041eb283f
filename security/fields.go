package security

import (
	"context"
	"fmt"
)

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// FieldSealer seals individual string columns. Empty strings stay empty and
// unsealed legacy values are returned as stored, so a database can be moved
// to encryption gradually.
type FieldSealer struct {
	provider SecretProvider
}

func NewFieldSealer(provider SecretProvider) *FieldSealer {
	return &FieldSealer{provider: provider}
}

func (s *FieldSealer) Enabled() bool {
	return s != nil && s.provider != nil
}

func (s *FieldSealer) Seal(ctx context.Context, value string) (string, error) {
	if !s.Enabled() || value == "" || IsSealed(value) {
		return value, nil
	}
	sealed, err := s.provider.Encrypt(ctx, []byte(value))
	if err != nil {
		return "", err
	}
	return string(sealed), nil
}

func (s *FieldSealer) Open(ctx context.Context, value string) (string, error) {
	if value == "" || !IsSealed(value) {
		return value, nil
	}
	if !s.Enabled() {
		return "", fmt.Errorf("security: value is sealed but no secret provider is configured")
	}
	plaintext, err := s.provider.Decrypt(ctx, []byte(value))
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// SealAll seals each target in place and stops at the first failure.
func (s *FieldSealer) SealAll(ctx context.Context, targets ...*string) error {
	for _, target := range targets {
		sealed, err := s.Seal(ctx, *target)
		if err != nil {
			return err
		}
		*target = sealed
	}
	return nil
}

// OpenAll is the inverse of SealAll.
func (s *FieldSealer) OpenAll(ctx context.Context, targets ...*string) error {
	for _, target := range targets {
		opened, err := s.Open(ctx, *target)
		if err != nil {
			return err
		}
		*target = opened
	}
	return nil
}

var _ SecretProvider = (*AppKeySecretProvider)(nil)
