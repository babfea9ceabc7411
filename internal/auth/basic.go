package auth

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"prekeyd/internal/domain"
	"prekeyd/internal/logger"
)

const basicScheme = "basic "

// BasicAuthenticator checks HTTP Basic credentials of the form
// <number|uuid>[.<device>]:<password> against the stored bcrypt hash of the
// named device.
type BasicAuthenticator struct {
	accounts domain.AccountDirectory
	log      logger.Logger
}

// BasicOption configures a BasicAuthenticator.
type BasicOption func(*BasicAuthenticator)

// WithLogger sets the logger used to report rejected credentials.
func WithLogger(l logger.Logger) BasicOption {
	return func(a *BasicAuthenticator) { a.log = l }
}

// NewBasicAuthenticator returns an authenticator backed by accounts.
func NewBasicAuthenticator(accounts domain.AccountDirectory, opts ...BasicOption) *BasicAuthenticator {
	a := &BasicAuthenticator{accounts: accounts, log: logger.NewDiscard()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authenticate resolves the Authorization header to the calling account and
// device. Bad or unknown credentials are ErrUnauthorized; storage failures
// pass through.
func (a *BasicAuthenticator) Authenticate(
	ctx context.Context,
	header string,
) (domain.Account, domain.Device, error) {
	user, deviceID, password, err := parseBasic(header)
	if err != nil {
		return domain.Account{}, domain.Device{}, err
	}

	account, ok, err := a.accounts.GetAccount(ctx, user)
	if err != nil {
		return domain.Account{}, domain.Device{}, err
	}
	if !ok {
		a.log.Debugf("auth: unknown account %s", user)
		return domain.Account{}, domain.Device{}, domain.ErrUnauthorized
	}
	device, ok := account.Device(deviceID)
	if !ok || device.AuthTokenHash == "" {
		a.log.Debugf("auth: no credentials for %s.%s", user, deviceID)
		return domain.Account{}, domain.Device{}, domain.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(device.AuthTokenHash), []byte(password)); err != nil {
		a.log.Debugf("auth: bad password for %s.%s", user, deviceID)
		return domain.Account{}, domain.Device{}, domain.ErrUnauthorized
	}
	return account, device, nil
}

func parseBasic(header string) (domain.AmbiguousIdentifier, domain.DeviceID, string, error) {
	fail := func(msg string) (domain.AmbiguousIdentifier, domain.DeviceID, string, error) {
		return domain.AmbiguousIdentifier{}, 0, "", errors.Wrap(domain.ErrUnauthorized, msg)
	}

	if len(header) < len(basicScheme) || !strings.EqualFold(header[:len(basicScheme)], basicScheme) {
		return fail("not basic credentials")
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len(basicScheme):]))
	if err != nil {
		return fail("credentials are not base64")
	}
	user, password, ok := strings.Cut(string(raw), ":")
	if !ok || user == "" {
		return fail("credentials lack a password")
	}

	deviceID := domain.PrimaryDeviceID
	if i := strings.LastIndexByte(user, '.'); i >= 0 {
		if deviceID, err = domain.ParseDeviceID(user[i+1:]); err != nil {
			return fail("bad device id")
		}
		user = user[:i]
	}
	id, err := domain.ParseIdentifier(user)
	if err != nil {
		return fail("bad account identifier")
	}
	return id, deviceID, password, nil
}

// BasicHeader builds the Authorization header value for user and password.
func BasicHeader(user, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+password))
}

// Hasher returns a password hasher with the given bcrypt cost.
func Hasher(cost int) func(password string) (string, error) {
	return func(password string) (string, error) {
		h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
		if err != nil {
			return "", errors.Wrap(err, "hash password")
		}
		return string(h), nil
	}
}

// HashPassword hashes password at the default bcrypt cost.
func HashPassword(password string) (string, error) {
	return Hasher(bcrypt.DefaultCost)(password)
}

// Compile-time assertion that BasicAuthenticator implements domain.Authenticator.
var _ domain.Authenticator = (*BasicAuthenticator)(nil)
