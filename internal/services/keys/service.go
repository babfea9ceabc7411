package keys

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"prekeyd/internal/auth"
	"prekeyd/internal/crypto"
	"prekeyd/internal/domain"
	"prekeyd/internal/logger"
	"prekeyd/internal/ratelimit"
)

const instrumentationName = "prekeyd/internal/services/keys"

// Service assembles key bundles from the account directory, the one-time
// prekey store and the signed prekey registry.
type Service struct {
	accounts domain.AccountDirectory
	prekeys  domain.OneTimePreKeyStore
	signed   domain.SignedPreKeyRegistry
	limiter  domain.RateLimiter
	log      logger.Logger
	meter    metric.Meter

	issued    metric.Int64Counter
	exhausted metric.Int64Counter
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithMeter sets the meter the prekey counters are registered on.
func WithMeter(m metric.Meter) Option {
	return func(s *Service) { s.meter = m }
}

// WithRateLimiter sets the limiter consulted by FetchBundle.
func WithRateLimiter(l domain.RateLimiter) Option {
	return func(s *Service) { s.limiter = l }
}

// New returns a Service over the given collaborators.
func New(
	accounts domain.AccountDirectory,
	prekeys domain.OneTimePreKeyStore,
	signed domain.SignedPreKeyRegistry,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		accounts: accounts,
		prekeys:  prekeys,
		signed:   signed,
		limiter:  ratelimit.Unlimited{},
		log:      logger.NewDiscard(),
		meter:    otel.Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	s.issued, err = s.meter.Int64Counter("prekeyd.prekeys.issued",
		metric.WithDescription("One-time prekeys handed out in bundles"),
		metric.WithUnit("{key}"))
	if err != nil {
		return nil, errors.Wrap(err, "issued counter")
	}
	s.exhausted, err = s.meter.Int64Counter("prekeyd.prekeys.exhausted",
		metric.WithDescription("Bundle entries returned without a one-time prekey"),
		metric.WithUnit("{entry}"))
	if err != nil {
		return nil, errors.Wrap(err, "exhausted counter")
	}
	return s, nil
}

// BundleForDevice returns a single-entry bundle for one device and consumes
// one of its one-time prekeys if any remain. A disabled device is NotFound
// unless allowDisabled is set.
func (s *Service) BundleForDevice(
	ctx context.Context,
	accountID uuid.UUID,
	deviceID domain.DeviceID,
	allowDisabled bool,
) (domain.KeyBundle, error) {
	account, err := s.account(ctx, accountID)
	if err != nil {
		return domain.KeyBundle{}, err
	}
	device, ok := account.Device(deviceID)
	if !ok || (!device.Enabled && !allowDisabled) {
		return domain.KeyBundle{}, errors.Wrapf(domain.ErrNotFound, "device %s.%s", accountID, deviceID)
	}

	var preKey *domain.OneTimePreKey
	key, err := s.prekeys.ConsumeOne(ctx, accountID, deviceID)
	switch {
	case err == nil:
		preKey = &key
	case errors.Is(err, domain.ErrNoKeysAvailable):
	default:
		return domain.KeyBundle{}, err
	}
	s.record(ctx, accountID, deviceID, preKey != nil, "device")

	entry, err := s.entry(ctx, accountID, device, preKey)
	if err != nil {
		return domain.KeyBundle{}, err
	}
	return domain.KeyBundle{
		IdentityKey: account.IdentityKey,
		Devices:     []domain.BundleDevice{entry},
	}, nil
}

// BundleForAllDevices returns one entry per enabled device, in ascending
// device id order, consuming at most one one-time prekey from each.
func (s *Service) BundleForAllDevices(ctx context.Context, accountID uuid.UUID) (domain.KeyBundle, error) {
	account, err := s.account(ctx, accountID)
	if err != nil {
		return domain.KeyBundle{}, err
	}

	devices := account.EnabledDevices()
	ids := make([]domain.DeviceID, 0, len(devices))
	for _, d := range devices {
		ids = append(ids, d.ID)
	}
	consumed, err := s.prekeys.ConsumeAll(ctx, accountID, ids)
	if err != nil {
		return domain.KeyBundle{}, err
	}

	bundle := domain.KeyBundle{
		IdentityKey: account.IdentityKey,
		Devices:     make([]domain.BundleDevice, 0, len(devices)),
	}
	for _, d := range devices {
		preKey := consumed[d.ID]
		s.record(ctx, accountID, d.ID, preKey != nil, "all")
		entry, err := s.entry(ctx, accountID, d, preKey)
		if err != nil {
			return domain.KeyBundle{}, err
		}
		bundle.Devices = append(bundle.Devices, entry)
	}
	return bundle, nil
}

// FetchBundle resolves target, checks the requester's access and rate
// allowance, then assembles the bundle the selector names. Nothing is
// consumed unless every check passes.
func (s *Service) FetchBundle(
	ctx context.Context,
	target domain.AmbiguousIdentifier,
	selector domain.DeviceSelector,
	requester domain.Requester,
) (domain.KeyBundle, error) {
	account, ok, err := s.accounts.GetAccount(ctx, target)
	if err != nil {
		return domain.KeyBundle{}, err
	}
	var found *domain.Account
	if ok {
		found = &account
	}
	if err := auth.CheckAccess(requester, found); err != nil {
		return domain.KeyBundle{}, err
	}

	if requester.Authenticated() {
		key := rateLimitKey(requester, account, selector)
		if !s.limiter.Allow(key) {
			s.log.Infof("prekey rate limit exceeded for %s", key)
			return domain.KeyBundle{}, errors.Wrap(domain.ErrRateLimited, key)
		}
	}

	if id, ok := selector.Device(); ok {
		return s.BundleForDevice(ctx, account.UUID, id, requester.Owns(account))
	}
	return s.BundleForAllDevices(ctx, account.UUID)
}

// KeyCount returns how many one-time prekeys the device has left.
func (s *Service) KeyCount(ctx context.Context, accountID uuid.UUID, deviceID domain.DeviceID) (int, error) {
	if _, err := s.device(ctx, accountID, deviceID); err != nil {
		return 0, err
	}
	return s.prekeys.CountRemaining(ctx, accountID, deviceID)
}

// SignedPreKey returns the device's current signed prekey, if any.
func (s *Service) SignedPreKey(
	ctx context.Context,
	accountID uuid.UUID,
	deviceID domain.DeviceID,
) (domain.SignedPreKey, bool, error) {
	return s.signed.GetSignedPreKey(ctx, accountID, deviceID)
}

// SetSignedPreKey replaces the device's signed prekey.
func (s *Service) SetSignedPreKey(
	ctx context.Context,
	accountID uuid.UUID,
	deviceID domain.DeviceID,
	key domain.SignedPreKey,
) error {
	if err := validateSignedPreKey(&key); err != nil {
		return err
	}
	return s.signed.SetSignedPreKey(ctx, accountID, deviceID, key)
}

func (s *Service) account(ctx context.Context, accountID uuid.UUID) (domain.Account, error) {
	account, ok, err := s.accounts.GetAccount(ctx, domain.UUIDIdentifier(accountID))
	if err != nil {
		return domain.Account{}, err
	}
	if !ok {
		return domain.Account{}, errors.Wrapf(domain.ErrNotFound, "account %s", accountID)
	}
	return account, nil
}

func (s *Service) device(ctx context.Context, accountID uuid.UUID, deviceID domain.DeviceID) (domain.Account, error) {
	account, err := s.account(ctx, accountID)
	if err != nil {
		return domain.Account{}, err
	}
	if _, ok := account.Device(deviceID); !ok {
		return domain.Account{}, errors.Wrapf(domain.ErrNotFound, "device %s.%s", accountID, deviceID)
	}
	return account, nil
}

func (s *Service) entry(
	ctx context.Context,
	accountID uuid.UUID,
	device domain.Device,
	preKey *domain.OneTimePreKey,
) (domain.BundleDevice, error) {
	entry := domain.BundleDevice{
		DeviceID:       device.ID,
		RegistrationID: device.RegistrationID,
		PreKey:         preKey,
	}
	signed, ok, err := s.signed.GetSignedPreKey(ctx, accountID, device.ID)
	if err != nil {
		return domain.BundleDevice{}, err
	}
	if ok {
		entry.SignedPreKey = &signed
	}
	return entry, nil
}

func (s *Service) record(ctx context.Context, accountID uuid.UUID, deviceID domain.DeviceID, issued bool, scope string) {
	attrs := metric.WithAttributes(attribute.String("scope", scope))
	if issued {
		s.issued.Add(ctx, 1, attrs)
		return
	}
	s.exhausted.Add(ctx, 1, attrs)
	s.log.Debugf("no one-time prekeys left for %s.%s", accountID, deviceID)
}

func rateLimitKey(requester domain.Requester, target domain.Account, selector domain.DeviceSelector) string {
	deviceID := domain.PrimaryDeviceID
	if requester.Device != nil {
		deviceID = requester.Device.ID
	}
	return fmt.Sprintf("%s.%s__%s.%s", requester.Account.Number, deviceID, target.Number, selector)
}

func fingerprint(key *string) string {
	if key == nil {
		return "none"
	}
	return crypto.FingerprintString(*key)
}

// Compile-time assertion that Service implements domain.KeyService.
var _ domain.KeyService = (*Service)(nil)
