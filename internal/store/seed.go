package store

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"prekeyd/internal/domain"
)

// SeedAccount is an account as written in a seed file. Passwords are
// plaintext and are hashed on apply; PreKeys become each device's initial
// inventory.
type SeedAccount struct {
	domain.Account
	Passwords map[domain.DeviceID]string                 `json:"passwords,omitempty"`
	PreKeys   map[domain.DeviceID][]domain.OneTimePreKey `json:"preKeys,omitempty"`
}

// Seed is the on-disk provisioning file.
type Seed struct {
	Accounts []SeedAccount `json:"accounts"`
}

// PasswordHasher turns a plaintext device password into a stored hash.
type PasswordHasher func(password string) (string, error)

// LoadSeed reads a seed file. A missing file yields an empty seed.
func LoadSeed(path string) (Seed, error) {
	var seed Seed
	if _, err := readJSON(path, &seed); err != nil {
		return Seed{}, err
	}
	return seed, nil
}

// SaveSeed atomically writes seed to path, readable only by the owner.
func SaveSeed(path string, seed Seed) error {
	return writeJSON(path, seed, 0o600)
}

// Upsert adds account to the seed or replaces the entry with the same UUID.
func (s *Seed) Upsert(account SeedAccount) {
	for i := range s.Accounts {
		if s.Accounts[i].UUID == account.UUID {
			s.Accounts[i] = account
			return
		}
	}
	s.Accounts = append(s.Accounts, account)
}

// ApplySeed writes every seeded account and its prekeys to w. Device
// passwords are hashed with hash; a device that already carries a hash keeps
// it when no password is given.
func ApplySeed(ctx context.Context, w AccountWriter, seed Seed, hash PasswordHasher) error {
	for _, sa := range seed.Accounts {
		account := sa.Account.Clone()
		for i := range account.Devices {
			d := &account.Devices[i]
			password, ok := sa.Passwords[d.ID]
			if !ok {
				continue
			}
			h, err := hash(password)
			if err != nil {
				return errors.Wrapf(err, "hash password for %s.%d", account.Number, d.ID)
			}
			d.AuthTokenHash = h
		}
		if err := w.PutAccount(ctx, account); err != nil {
			return errors.Wrapf(err, "seed account %s", account.Number)
		}

		ids := make([]domain.DeviceID, 0, len(sa.PreKeys))
		for id := range sa.PreKeys {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			if _, ok := account.Device(id); !ok {
				return errors.Errorf("seed prekeys for unknown device %s.%d", account.Number, id)
			}
			if err := w.ReplaceAll(ctx, account.UUID, id, sa.PreKeys[id]); err != nil {
				return errors.Wrapf(err, "seed prekeys for %s.%d", account.Number, id)
			}
		}
	}
	return nil
}
