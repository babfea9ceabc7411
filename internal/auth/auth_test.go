package auth_test

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"prekeyd/internal/auth"
	"prekeyd/internal/domain"
	"prekeyd/internal/store"
)

func token(s string) *string {
	t := base64.StdEncoding.EncodeToString([]byte(s))
	return &t
}

func target() domain.Account {
	return domain.Account{
		UUID:                  uuid.New(),
		Number:                "+14152222222",
		UnidentifiedAccessKey: []byte("1337"),
		Enabled:               true,
	}
}

func TestCheckAccessAuthenticated(t *testing.T) {
	caller := &domain.Account{Number: "+14151111111", Enabled: true}
	req := domain.Requester{Account: caller}

	tgt := target()
	require.NoError(t, auth.CheckAccess(req, &tgt))

	// Given a missing or disabled target, expect NotFound.
	require.ErrorIs(t, auth.CheckAccess(req, nil), domain.ErrNotFound)
	tgt.Enabled = false
	require.ErrorIs(t, auth.CheckAccess(req, &tgt), domain.ErrNotFound)
}

func TestCheckAccessToken(t *testing.T) {
	tgt := target()

	require.NoError(t, auth.CheckAccess(domain.Requester{AccessToken: token("1337")}, &tgt))
	require.ErrorIs(t, auth.CheckAccess(domain.Requester{AccessToken: token("9999")}, &tgt), domain.ErrUnauthorized)

	garbage := "$$$$$$$$$"
	require.ErrorIs(t, auth.CheckAccess(domain.Requester{AccessToken: &garbage}, &tgt), domain.ErrUnauthorized)

	// A missing target does not leak existence to token holders.
	require.ErrorIs(t, auth.CheckAccess(domain.Requester{AccessToken: token("1337")}, nil), domain.ErrUnauthorized)

	// Neither credential.
	require.ErrorIs(t, auth.CheckAccess(domain.Requester{}, &tgt), domain.ErrUnauthorized)

	disabled := target()
	disabled.Enabled = false
	require.ErrorIs(t, auth.CheckAccess(domain.Requester{AccessToken: token("1337")}, &disabled), domain.ErrUnauthorized)
}

func TestCheckAccessUnrestricted(t *testing.T) {
	tgt := target()
	tgt.UnidentifiedAccessKey = nil
	require.ErrorIs(t, auth.CheckAccess(domain.Requester{AccessToken: token("anything")}, &tgt), domain.ErrUnauthorized)

	tgt.UnrestrictedUnidentifiedAccess = true
	require.NoError(t, auth.CheckAccess(domain.Requester{AccessToken: token("anything")}, &tgt))
}

func TestBasicAuthenticator(t *testing.T) {
	ctx := context.Background()
	hash, err := auth.Hasher(bcrypt.MinCost)("hunter2")
	require.NoError(t, err)

	account := target()
	account.Devices = []domain.Device{
		{ID: 1, Enabled: true, AuthTokenHash: hash},
		{ID: 2, Enabled: true},
	}
	s := store.NewMemoryStore()
	require.NoError(t, s.PutAccount(ctx, account))
	a := auth.NewBasicAuthenticator(s)

	got, device, err := a.Authenticate(ctx, auth.BasicHeader("+14152222222", "hunter2"))
	require.NoError(t, err)
	require.Equal(t, account.UUID, got.UUID)
	require.Equal(t, domain.DeviceID(1), device.ID)

	_, device, err = a.Authenticate(ctx, auth.BasicHeader(account.UUID.String()+".1", "hunter2"))
	require.NoError(t, err)
	require.Equal(t, domain.DeviceID(1), device.ID)

	for name, header := range map[string]string{
		"wrong password":     auth.BasicHeader("+14152222222", "nope"),
		"unknown account":    auth.BasicHeader("+14152222220", "hunter2"),
		"device without pin": auth.BasicHeader("+14152222222.2", "hunter2"),
		"unknown device":     auth.BasicHeader("+14152222222.22", "hunter2"),
		"bad device":         auth.BasicHeader("+14152222222.x", "hunter2"),
		"no password":        "Basic " + base64.StdEncoding.EncodeToString([]byte("+14152222222")),
		"not base64":         "Basic $$$",
		"bearer":             "Bearer abc",
		"empty":              "",
	} {
		_, _, err := a.Authenticate(ctx, header)
		require.ErrorIs(t, err, domain.ErrUnauthorized, name)
	}
}

func TestBasicAuthenticatorStorageFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := auth.NewBasicAuthenticator(store.NewMemoryStore())

	_, _, err := a.Authenticate(ctx, auth.BasicHeader("+14152222222", "x"))
	require.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestPolicy(t *testing.T) {
	p, err := auth.NewDefaultPolicy()
	require.NoError(t, err)

	for _, op := range []auth.Operation{auth.OpKeyCount, auth.OpSignedPreKeyGet, auth.OpSignedPreKeyPut, auth.OpUpload, auth.OpFetch} {
		require.NoError(t, p.Authorize(auth.SubjectAccount, op), op)
	}

	require.NoError(t, p.Authorize(auth.SubjectDisabledAccount, auth.OpUpload))
	require.ErrorIs(t, p.Authorize(auth.SubjectDisabledAccount, auth.OpSignedPreKeyPut), domain.ErrUnauthorized)
	require.ErrorIs(t, p.Authorize(auth.SubjectDisabledAccount, auth.OpKeyCount), domain.ErrUnauthorized)

	require.NoError(t, p.Authorize(auth.SubjectUnidentified, auth.OpFetch))
	require.ErrorIs(t, p.Authorize(auth.SubjectUnidentified, auth.OpUpload), domain.ErrUnauthorized)

	_, err = auth.NewPolicy([][]string{{"account"}})
	require.Error(t, err)
}

func TestSubjectOf(t *testing.T) {
	require.Equal(t, auth.SubjectUnidentified, auth.SubjectOf(domain.Requester{AccessToken: token("1337")}))
	require.Equal(t, auth.SubjectAccount, auth.SubjectOf(domain.Requester{Account: &domain.Account{Enabled: true}}))
	require.Equal(t, auth.SubjectDisabledAccount, auth.SubjectOf(domain.Requester{Account: &domain.Account{}}))
}
