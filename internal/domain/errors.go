package domain

import "errors"

var (
	// ErrUnauthorized signals a missing or invalid session; the caller must
	// re-authenticate.
	ErrUnauthorized = errors.New("auth: unauthorized")
	// ErrForbidden signals a known caller without any of the required roles.
	ErrForbidden = errors.New("auth: forbidden")
	// ErrBrandNotSupported signals a missing or inactive brand code.
	ErrBrandNotSupported = errors.New("brand: not supported")
	// ErrUnknownSettingKey signals a key outside the classification table.
	ErrUnknownSettingKey = errors.New("settings: unknown setting key")
)
