package auth

import (
	"crypto/subtle"
	"encoding/base64"

	"prekeyd/internal/domain"
)

// CheckAccess decides whether requester may read key material of target.
// target is nil when the account does not exist.
//
// An authenticated requester learns whether the target exists: a missing or
// disabled target is ErrNotFound. A requester holding only an
// unidentified-access token gets ErrUnauthorized for every failure,
// including a missing target.
func CheckAccess(requester domain.Requester, target *domain.Account) error {
	if requester.Authenticated() {
		if target == nil || !target.Enabled {
			return domain.ErrNotFound
		}
		return nil
	}

	if requester.AccessToken == nil || target == nil || !target.Enabled {
		return domain.ErrUnauthorized
	}
	if target.UnrestrictedUnidentifiedAccess {
		return nil
	}
	if len(target.UnidentifiedAccessKey) == 0 {
		return domain.ErrUnauthorized
	}
	presented, err := base64.StdEncoding.DecodeString(*requester.AccessToken)
	if err != nil {
		return domain.ErrUnauthorized
	}
	if subtle.ConstantTimeCompare(presented, target.UnidentifiedAccessKey) != 1 {
		return domain.ErrUnauthorized
	}
	return nil
}
