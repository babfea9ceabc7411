package store

import (
	"context"

	"prekeyd/internal/domain"
)

// AccountWriter is a KeyStore that can also create accounts. Provisioning and
// tests use it; the key service itself only updates existing accounts.
type AccountWriter interface {
	domain.KeyStore
	PutAccount(ctx context.Context, account domain.Account) error
}

var (
	_ AccountWriter = (*MemoryStore)(nil)
	_ AccountWriter = (*BoltStore)(nil)
)

func sameIdentityKey(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameSignedPreKey(a, b *domain.SignedPreKey) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneSignedPreKey(k *domain.SignedPreKey) *domain.SignedPreKey {
	if k == nil {
		return nil
	}
	v := *k
	return &v
}
