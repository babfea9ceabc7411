// Package storetest builds populated stores for tests of the key service and
// its transports.
package storetest

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"prekeyd/internal/auth"
	"prekeyd/internal/domain"
	"prekeyd/internal/store"
)

// Fixture numbers, identifiers and credentials.
const (
	ExistsNumber   = "+14152222222"
	NotExistNumber = "+14152222220"
	CallerNumber   = "+14151111111"
	DisabledNumber = "+14153333333"

	ExistsIdentityKey = "existsidentitykey"
	AccessKey         = "1337"
	Password          = "pass"
)

var (
	ExistsUUID   = uuid.MustParse("b8ad4b5c-7a6f-4b3b-8e61-7f0e4e4a2c11")
	CallerUUID   = uuid.MustParse("5a1f5d6e-22a3-4b77-9d42-0d6c8d4c9e01")
	DisabledUUID = uuid.MustParse("c0ffee00-1111-4222-8333-944455556666")
)

// Fixture is the seeded state; stores built from it can be inspected
// through Store.
type Fixture struct {
	Store *store.MemoryStore
	Seed  store.Seed
}

func strPtr(s string) *string { return &s }

// Seed returns the fixture accounts:
//
//   - ExistsNumber, with identity key "existsidentitykey", access key "1337"
//     and four devices: 1 and 2 enabled with signed and one-time keys, 3
//     disabled and 4 enabled without a signed prekey;
//   - CallerNumber, an enabled single-device account;
//   - DisabledNumber, a disabled single-device account.
//
// Every device password is Password.
func Seed() store.Seed {
	passwords := func(ids ...domain.DeviceID) map[domain.DeviceID]string {
		out := make(map[domain.DeviceID]string, len(ids))
		for _, id := range ids {
			out[id] = Password
		}
		return out
	}
	return store.Seed{Accounts: []store.SeedAccount{
		{
			Account: domain.Account{
				UUID:                  ExistsUUID,
				Number:                ExistsNumber,
				IdentityKey:           strPtr(ExistsIdentityKey),
				UnidentifiedAccessKey: []byte(AccessKey),
				Enabled:               true,
				Devices: []domain.Device{
					{ID: 1, RegistrationID: 999, Enabled: true,
						SignedPreKey: &domain.SignedPreKey{KeyID: 1111, PublicKey: "foofoo", Signature: "sig11"}},
					{ID: 2, RegistrationID: 1002, Enabled: true,
						SignedPreKey: &domain.SignedPreKey{KeyID: 2222, PublicKey: "foobar", Signature: "sig22"}},
					{ID: 3, RegistrationID: 1102, Enabled: false,
						SignedPreKey: &domain.SignedPreKey{KeyID: 3333, PublicKey: "barfoo", Signature: "sig33"}},
					{ID: 4, RegistrationID: 1555, Enabled: true},
				},
			},
			Passwords: passwords(1, 2, 3, 4),
			PreKeys: map[domain.DeviceID][]domain.OneTimePreKey{
				1: {{KeyID: 1234, PublicKey: "test1"}},
				2: {{KeyID: 5667, PublicKey: "test3"}},
				3: {{KeyID: 334, PublicKey: "test5"}},
				4: {{KeyID: 336, PublicKey: "test6"}},
			},
		},
		{
			Account: domain.Account{
				UUID:    CallerUUID,
				Number:  CallerNumber,
				Enabled: true,
				Devices: []domain.Device{{ID: 1, RegistrationID: 42, Enabled: true}},
			},
			Passwords: passwords(1),
		},
		{
			Account: domain.Account{
				UUID:    DisabledUUID,
				Number:  DisabledNumber,
				Enabled: false,
				Devices: []domain.Device{{ID: 1, RegistrationID: 43, Enabled: false}},
			},
			Passwords: passwords(1),
		},
	}}
}

// New returns a MemoryStore holding Seed. Passwords are hashed at the
// minimum bcrypt cost.
func New(ctx context.Context) (*Fixture, error) {
	s := store.NewMemoryStore()
	seed := Seed()
	if err := store.ApplySeed(ctx, s, seed, auth.Hasher(bcrypt.MinCost)); err != nil {
		return nil, err
	}
	return &Fixture{Store: s, Seed: seed}, nil
}

// Requester returns an authenticated requester for the account with the
// given number, as read from f.
func (f *Fixture) Requester(ctx context.Context, number string) (domain.Requester, error) {
	account, ok, err := f.Store.GetAccount(ctx, domain.NumberIdentifier(number))
	if err != nil {
		return domain.Requester{}, err
	}
	if !ok {
		return domain.Requester{}, domain.ErrNotFound
	}
	device, _ := account.Device(domain.PrimaryDeviceID)
	return domain.Requester{Account: &account, Device: &device}, nil
}
