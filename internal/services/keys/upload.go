package keys

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"prekeyd/internal/domain"
)

// UploadKeys installs a device's signed prekey and one-time prekeys and, when
// given, the account identity key. Either every part is applied or none.
//
// Each write touches only the field it changes, so concurrent uploads and
// signed prekey rotations by other devices of the account are kept. If a
// later step fails, the fields this upload wrote are put back unless someone
// has changed them since, and the failure is reported as ErrUnavailable.
func (s *Service) UploadKeys(
	ctx context.Context,
	accountID uuid.UUID,
	deviceID domain.DeviceID,
	upload domain.KeyUpload,
) error {
	if err := validateUpload(upload); err != nil {
		return err
	}
	prior, err := s.device(ctx, accountID, deviceID)
	if err != nil {
		return err
	}

	u := undo{accountID: accountID, deviceID: deviceID}
	if upload.IdentityKey != nil && !sameKey(prior.IdentityKey, upload.IdentityKey) {
		previous, err := s.accounts.SetIdentityKey(ctx, accountID, *upload.IdentityKey)
		if err != nil {
			return errors.Wrap(err, "store identity key")
		}
		if previous != nil && !sameKey(previous, upload.IdentityKey) {
			s.log.WithField("account", accountID.String()).Warnf(
				"identity key changed from %s to %s by device %s",
				fingerprint(previous), fingerprint(upload.IdentityKey), deviceID)
		}
		u.identity, u.priorIdentity = upload.IdentityKey, previous
	}

	device, _ := prior.Device(deviceID)
	if err := s.signed.SetSignedPreKey(ctx, accountID, deviceID, *upload.SignedPreKey); err != nil {
		return s.rollback(ctx, u, errors.Wrap(err, "store signed prekey"))
	}
	u.signed, u.priorSigned = upload.SignedPreKey, device.SignedPreKey

	if err := s.prekeys.ReplaceAll(ctx, accountID, deviceID, upload.PreKeys); err != nil {
		return s.rollback(ctx, u, errors.Wrap(err, "store one-time prekeys"))
	}

	s.log.Debugf("stored %d one-time prekeys for %s.%s", len(upload.PreKeys), accountID, deviceID)
	return nil
}

// undo records what an upload wrote and what it replaced. Nil written
// values were not touched.
type undo struct {
	accountID uuid.UUID
	deviceID  domain.DeviceID

	identity      *string
	priorIdentity *string

	signed      *domain.SignedPreKey
	priorSigned *domain.SignedPreKey
}

// rollback restores the fields in u that still hold what the upload wrote.
func (s *Service) rollback(ctx context.Context, u undo, cause error) error {
	ctx = context.WithoutCancel(ctx)
	if u.signed != nil {
		if _, err := s.signed.CompareAndSwapSignedPreKey(ctx, u.accountID, u.deviceID, u.signed, u.priorSigned); err != nil {
			s.log.Errorf("restoring signed prekey of %s.%s after failed upload: %v", u.accountID, u.deviceID, err)
		}
	}
	if u.identity != nil {
		if _, err := s.accounts.CompareAndSwapIdentityKey(ctx, u.accountID, u.identity, u.priorIdentity); err != nil {
			s.log.Errorf("restoring identity key of %s after failed upload: %v", u.accountID, err)
		}
	}
	return domain.Unavailable(cause)
}

func validateUpload(upload domain.KeyUpload) error {
	if len(upload.PreKeys) == 0 {
		return errors.Wrap(domain.ErrInvalidKeyState, "no one-time prekeys")
	}
	if upload.IdentityKey != nil && *upload.IdentityKey == "" {
		return errors.Wrap(domain.ErrInvalidKeyState, "empty identity key")
	}
	if err := validateSignedPreKey(upload.SignedPreKey); err != nil {
		return err
	}
	for _, k := range upload.PreKeys {
		if k.PublicKey == "" {
			return errors.Wrapf(domain.ErrInvalidKeyState, "one-time prekey %d has no public key", k.KeyID)
		}
	}
	return nil
}

func validateSignedPreKey(key *domain.SignedPreKey) error {
	switch {
	case key == nil:
		return errors.Wrap(domain.ErrInvalidKeyState, "no signed prekey")
	case key.PublicKey == "":
		return errors.Wrapf(domain.ErrInvalidKeyState, "signed prekey %d has no public key", key.KeyID)
	case key.Signature == "":
		return errors.Wrapf(domain.ErrInvalidKeyState, "signed prekey %d has no signature", key.KeyID)
	}
	return nil
}

func sameKey(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
