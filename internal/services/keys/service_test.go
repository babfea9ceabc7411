package keys_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"prekeyd/internal/domain"
	"prekeyd/internal/logger"
	"prekeyd/internal/services/keys"
	"prekeyd/internal/store"
	"prekeyd/internal/store/storetest"
)

type denyLimiter struct{ keys []string }

func (d *denyLimiter) Allow(key string) bool {
	d.keys = append(d.keys, key)
	return false
}

// failingPrekeys fails every inventory replace.
type failingPrekeys struct {
	*store.MemoryStore
}

func (failingPrekeys) ReplaceAll(context.Context, uuid.UUID, domain.DeviceID, []domain.OneTimePreKey) error {
	return domain.Unavailable(errors.New("disk on fire"))
}

// rotatingDirectory runs rotate once, right after the first account read,
// the way a request from another device would land mid-upload.
type rotatingDirectory struct {
	*store.MemoryStore
	once   sync.Once
	rotate func()
}

func (d *rotatingDirectory) GetAccount(
	ctx context.Context,
	id domain.AmbiguousIdentifier,
) (domain.Account, bool, error) {
	account, ok, err := d.MemoryStore.GetAccount(ctx, id)
	d.once.Do(d.rotate)
	return account, ok, err
}

func setup(t *testing.T, opts ...keys.Option) (*keys.Service, *storetest.Fixture) {
	t.Helper()
	f, err := storetest.New(context.Background())
	require.NoError(t, err)
	opts = append([]keys.Option{keys.WithMeter(noop.NewMeterProvider().Meter("test"))}, opts...)
	svc, err := keys.New(f.Store, f.Store, f.Store, opts...)
	require.NoError(t, err)
	return svc, f
}

func caller(t *testing.T, f *storetest.Fixture, number string) domain.Requester {
	t.Helper()
	r, err := f.Requester(context.Background(), number)
	require.NoError(t, err)
	return r
}

func token(s string) *string {
	t := base64.StdEncoding.EncodeToString([]byte(s))
	return &t
}

func remaining(t *testing.T, f *storetest.Fixture, id domain.DeviceID) int {
	t.Helper()
	n, err := f.Store.CountRemaining(context.Background(), storetest.ExistsUUID, id)
	require.NoError(t, err)
	return n
}

// Ensure that a single-device fetch returns the identity key, the signed
// prekey and the next one-time prekey, and consumes it.
func TestFetchBundleSingleDevice(t *testing.T) {
	ctx := context.Background()
	svc, f := setup(t)

	bundle, err := svc.FetchBundle(ctx, domain.NumberIdentifier(storetest.ExistsNumber),
		domain.SingleDevice(1), caller(t, f, storetest.CallerNumber))
	require.NoError(t, err)

	require.Equal(t, storetest.ExistsIdentityKey, *bundle.IdentityKey)
	require.Len(t, bundle.Devices, 1)
	d := bundle.Devices[0]
	require.Equal(t, domain.DeviceID(1), d.DeviceID)
	require.Equal(t, uint32(999), d.RegistrationID)
	require.Equal(t, domain.OneTimePreKey{KeyID: 1234, PublicKey: "test1"}, *d.PreKey)
	require.Equal(t, domain.SignedPreKey{KeyID: 1111, PublicKey: "foofoo", Signature: "sig11"}, *d.SignedPreKey)
	require.Zero(t, remaining(t, f, 1))

	// Given the device is exhausted, expect an entry without a prekey.
	bundle, err = svc.FetchBundle(ctx, domain.UUIDIdentifier(storetest.ExistsUUID),
		domain.SingleDevice(1), caller(t, f, storetest.CallerNumber))
	require.NoError(t, err)
	require.Nil(t, bundle.Devices[0].PreKey)
	require.NotNil(t, bundle.Devices[0].SignedPreKey)
}

// Ensure that an all-devices fetch skips disabled devices and orders entries
// by device id.
func TestFetchBundleAllDevices(t *testing.T) {
	ctx := context.Background()
	svc, f := setup(t)

	bundle, err := svc.FetchBundle(ctx, domain.NumberIdentifier(storetest.ExistsNumber),
		domain.AllDevices(), caller(t, f, storetest.CallerNumber))
	require.NoError(t, err)

	require.Len(t, bundle.Devices, 3)
	require.Equal(t, domain.DeviceID(1), bundle.Devices[0].DeviceID)
	require.Equal(t, domain.DeviceID(2), bundle.Devices[1].DeviceID)
	require.Equal(t, domain.DeviceID(4), bundle.Devices[2].DeviceID)

	require.Equal(t, uint32(5667), bundle.Devices[1].PreKey.KeyID)
	require.Equal(t, uint32(2222), bundle.Devices[1].SignedPreKey.KeyID)
	require.Equal(t, uint32(1555), bundle.Devices[2].RegistrationID)
	require.Nil(t, bundle.Devices[2].SignedPreKey)
	require.Equal(t, uint32(336), bundle.Devices[2].PreKey.KeyID)

	// The disabled device keeps its key.
	require.Equal(t, 1, remaining(t, f, 3))
}

func TestFetchBundleNotFound(t *testing.T) {
	ctx := context.Background()
	svc, f := setup(t)
	req := caller(t, f, storetest.CallerNumber)

	_, err := svc.FetchBundle(ctx, domain.NumberIdentifier(storetest.NotExistNumber), domain.SingleDevice(1), req)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.FetchBundle(ctx, domain.NumberIdentifier(storetest.ExistsNumber), domain.SingleDevice(22), req)
	require.ErrorIs(t, err, domain.ErrNotFound)

	// A disabled device is hidden from other accounts.
	_, err = svc.FetchBundle(ctx, domain.NumberIdentifier(storetest.ExistsNumber), domain.SingleDevice(3), req)
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.Equal(t, 1, remaining(t, f, 3))

	// A disabled account is hidden too.
	_, err = svc.FetchBundle(ctx, domain.NumberIdentifier(storetest.DisabledNumber), domain.AllDevices(), req)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

// Ensure that the owner can still read a disabled device's bundle.
func TestFetchBundleOwnDisabledDevice(t *testing.T) {
	svc, f := setup(t)

	bundle, err := svc.FetchBundle(context.Background(), domain.NumberIdentifier(storetest.ExistsNumber),
		domain.SingleDevice(3), caller(t, f, storetest.ExistsNumber))
	require.NoError(t, err)
	require.Equal(t, uint32(334), bundle.Devices[0].PreKey.KeyID)
	require.Equal(t, uint32(3333), bundle.Devices[0].SignedPreKey.KeyID)
}

func TestFetchBundleUnidentified(t *testing.T) {
	ctx := context.Background()
	svc, f := setup(t)
	target := domain.NumberIdentifier(storetest.ExistsNumber)

	bundle, err := svc.FetchBundle(ctx, target, domain.SingleDevice(1), domain.Requester{AccessToken: token("1337")})
	require.NoError(t, err)
	require.Equal(t, uint32(1234), bundle.Devices[0].PreKey.KeyID)

	for _, tok := range []*string{token("9999"), strPtr("$$$$$$$$$"), nil} {
		_, err := svc.FetchBundle(ctx, target, domain.SingleDevice(2), domain.Requester{AccessToken: tok})
		require.ErrorIs(t, err, domain.ErrUnauthorized)
	}
	require.Equal(t, 1, remaining(t, f, 2))

	// Token holders cannot probe for missing accounts.
	_, err = svc.FetchBundle(ctx, domain.NumberIdentifier(storetest.NotExistNumber), domain.AllDevices(),
		domain.Requester{AccessToken: token("1337")})
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestFetchBundleRateLimited(t *testing.T) {
	limiter := &denyLimiter{}
	svc, f := setup(t, keys.WithRateLimiter(limiter))

	_, err := svc.FetchBundle(context.Background(), domain.NumberIdentifier(storetest.ExistsNumber),
		domain.SingleDevice(1), caller(t, f, storetest.CallerNumber))
	require.ErrorIs(t, err, domain.ErrRateLimited)
	require.Equal(t, []string{"+14151111111.1__+14152222222.1"}, limiter.keys)
	require.Equal(t, 1, remaining(t, f, 1))

	// Unidentified callers are not rate limited here.
	_, err = svc.FetchBundle(context.Background(), domain.NumberIdentifier(storetest.ExistsNumber),
		domain.AllDevices(), domain.Requester{AccessToken: token("1337")})
	require.NoError(t, err)
	require.Len(t, limiter.keys, 1)
}

func TestBundleForAllDevicesNoEnabledDevices(t *testing.T) {
	svc, _ := setup(t)

	bundle, err := svc.BundleForAllDevices(context.Background(), storetest.DisabledUUID)
	require.NoError(t, err)
	require.Empty(t, bundle.Devices)

	_, err = svc.BundleForAllDevices(context.Background(), uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestKeyCount(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)

	n, err := svc.KeyCount(ctx, storetest.ExistsUUID, 1)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = svc.KeyCount(ctx, storetest.ExistsUUID, 22)
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.KeyCount(ctx, uuid.New(), 1)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSignedPreKey(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)

	_, ok, err := svc.SignedPreKey(ctx, storetest.ExistsUUID, 4)
	require.NoError(t, err)
	require.False(t, ok)

	key := domain.SignedPreKey{KeyID: 31338, PublicKey: "foobaz", Signature: "myvalidsig"}
	require.NoError(t, svc.SetSignedPreKey(ctx, storetest.ExistsUUID, 4, key))
	got, ok, err := svc.SignedPreKey(ctx, storetest.ExistsUUID, 4)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, key, got)

	require.ErrorIs(t, svc.SetSignedPreKey(ctx, storetest.ExistsUUID, 4, domain.SignedPreKey{KeyID: 1}),
		domain.ErrInvalidKeyState)
}

func strPtr(s string) *string { return &s }

func validUpload() domain.KeyUpload {
	return domain.KeyUpload{
		IdentityKey:  strPtr("barbar"),
		SignedPreKey: &domain.SignedPreKey{KeyID: 31338, PublicKey: "foobaz", Signature: "myvalidsig"},
		PreKeys:      []domain.OneTimePreKey{{KeyID: 31337, PublicKey: "foobar"}},
	}
}

func TestUploadKeys(t *testing.T) {
	ctx := context.Background()
	svc, f := setup(t)

	require.NoError(t, svc.UploadKeys(ctx, storetest.ExistsUUID, 1, validUpload()))

	account, _, err := f.Store.GetAccount(ctx, domain.UUIDIdentifier(storetest.ExistsUUID))
	require.NoError(t, err)
	require.Equal(t, "barbar", *account.IdentityKey)

	signed, ok, err := f.Store.GetSignedPreKey(ctx, storetest.ExistsUUID, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(31338), signed.KeyID)

	key, err := f.Store.ConsumeOne(ctx, storetest.ExistsUUID, 1)
	require.NoError(t, err)
	require.Equal(t, domain.OneTimePreKey{KeyID: 31337, PublicKey: "foobar"}, key)
	require.Zero(t, remaining(t, f, 1))
}

// Ensure that a disabled account may still upload.
func TestUploadKeysDisabledAccount(t *testing.T) {
	svc, f := setup(t)
	require.NoError(t, svc.UploadKeys(context.Background(), storetest.DisabledUUID, 1, validUpload()))

	n, err := f.Store.CountRemaining(context.Background(), storetest.DisabledUUID, 1)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestUploadKeysRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	svc, f := setup(t)

	cases := map[string]func(u *domain.KeyUpload){
		"no prekeys":        func(u *domain.KeyUpload) { u.PreKeys = nil },
		"no signed prekey":  func(u *domain.KeyUpload) { u.SignedPreKey = nil },
		"unsigned":          func(u *domain.KeyUpload) { u.SignedPreKey.Signature = "" },
		"empty identity":    func(u *domain.KeyUpload) { u.IdentityKey = strPtr("") },
		"empty prekey body": func(u *domain.KeyUpload) { u.PreKeys[0].PublicKey = "" },
	}
	for name, mutate := range cases {
		u := validUpload()
		mutate(&u)
		require.ErrorIs(t, svc.UploadKeys(ctx, storetest.ExistsUUID, 1, u), domain.ErrInvalidKeyState, name)
	}

	// Nothing changed.
	require.Equal(t, 1, remaining(t, f, 1))
	account, _, err := f.Store.GetAccount(ctx, domain.UUIDIdentifier(storetest.ExistsUUID))
	require.NoError(t, err)
	require.Equal(t, storetest.ExistsIdentityKey, *account.IdentityKey)

	require.ErrorIs(t, svc.UploadKeys(ctx, storetest.ExistsUUID, 22, validUpload()), domain.ErrNotFound)
}

// Ensure that a failed inventory replace leaves the identity key and signed
// prekey as they were.
func TestUploadKeysRollsBack(t *testing.T) {
	ctx := context.Background()
	f, err := storetest.New(ctx)
	require.NoError(t, err)
	svc, err := keys.New(f.Store, failingPrekeys{f.Store}, f.Store,
		keys.WithMeter(noop.NewMeterProvider().Meter("test")))
	require.NoError(t, err)

	err = svc.UploadKeys(ctx, storetest.ExistsUUID, 1, validUpload())
	require.ErrorIs(t, err, domain.ErrUnavailable)

	account, _, err := f.Store.GetAccount(ctx, domain.UUIDIdentifier(storetest.ExistsUUID))
	require.NoError(t, err)
	require.Equal(t, storetest.ExistsIdentityKey, *account.IdentityKey)
	signed, _, err := f.Store.GetSignedPreKey(ctx, storetest.ExistsUUID, 1)
	require.NoError(t, err)
	require.Equal(t, uint32(1111), signed.KeyID)
	require.Equal(t, 1, remaining(t, f, 1))
}

func rotateDevice2(t *testing.T, f *storetest.Fixture) (*rotatingDirectory, domain.SignedPreKey) {
	t.Helper()
	rotated := domain.SignedPreKey{KeyID: 9999, PublicKey: "rotated", Signature: "sig99"}
	return &rotatingDirectory{
		MemoryStore: f.Store,
		rotate: func() {
			require.NoError(t, f.Store.SetSignedPreKey(context.Background(), storetest.ExistsUUID, 2, rotated))
		},
	}, rotated
}

// Ensure that an upload with a new identity key keeps a signed prekey that
// another device rotated while the upload was in flight.
func TestUploadKeysKeepsConcurrentRotation(t *testing.T) {
	ctx := context.Background()
	f, err := storetest.New(ctx)
	require.NoError(t, err)
	dir, rotated := rotateDevice2(t, f)
	svc, err := keys.New(dir, f.Store, f.Store, keys.WithMeter(noop.NewMeterProvider().Meter("test")))
	require.NoError(t, err)

	require.NoError(t, svc.UploadKeys(ctx, storetest.ExistsUUID, 1, validUpload()))

	signed, _, err := f.Store.GetSignedPreKey(ctx, storetest.ExistsUUID, 2)
	require.NoError(t, err)
	require.Equal(t, rotated, signed)
	account, _, err := f.Store.GetAccount(ctx, domain.UUIDIdentifier(storetest.ExistsUUID))
	require.NoError(t, err)
	require.Equal(t, "barbar", *account.IdentityKey)
}

// Ensure that rolling back a failed upload restores only what it wrote.
func TestUploadKeysRollbackKeepsConcurrentRotation(t *testing.T) {
	ctx := context.Background()
	f, err := storetest.New(ctx)
	require.NoError(t, err)
	dir, rotated := rotateDevice2(t, f)
	svc, err := keys.New(dir, failingPrekeys{f.Store}, f.Store, keys.WithMeter(noop.NewMeterProvider().Meter("test")))
	require.NoError(t, err)

	require.ErrorIs(t, svc.UploadKeys(ctx, storetest.ExistsUUID, 1, validUpload()), domain.ErrUnavailable)

	signed, _, err := f.Store.GetSignedPreKey(ctx, storetest.ExistsUUID, 2)
	require.NoError(t, err)
	require.Equal(t, rotated, signed)
	signed, _, err = f.Store.GetSignedPreKey(ctx, storetest.ExistsUUID, 1)
	require.NoError(t, err)
	require.Equal(t, uint32(1111), signed.KeyID)
	account, _, err := f.Store.GetAccount(ctx, domain.UUIDIdentifier(storetest.ExistsUUID))
	require.NoError(t, err)
	require.Equal(t, storetest.ExistsIdentityKey, *account.IdentityKey)
}

// Ensure that replacing an identity key is logged with both fingerprints.
func TestUploadKeysIdentityChangeIsLogged(t *testing.T) {
	var buf bytes.Buffer
	l := logger.NewLogger(uint32(log.WarnLevel))
	l.SetWriter(&buf)
	svc, _ := setup(t, keys.WithLogger(l))

	require.NoError(t, svc.UploadKeys(context.Background(), storetest.ExistsUUID, 1, validUpload()))
	require.Contains(t, buf.String(), "identity key changed")
	require.Contains(t, buf.String(), storetest.ExistsUUID.String())

	// Re-uploading the same identity key is quiet.
	buf.Reset()
	require.NoError(t, svc.UploadKeys(context.Background(), storetest.ExistsUUID, 1, validUpload()))
	require.Empty(t, buf.String())
}

func TestStorageFailureIsUnavailable(t *testing.T) {
	svc, f := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.FetchBundle(ctx, domain.NumberIdentifier(storetest.ExistsNumber),
		domain.SingleDevice(1), caller(t, f, storetest.CallerNumber))
	require.ErrorIs(t, err, domain.ErrUnavailable)
}
