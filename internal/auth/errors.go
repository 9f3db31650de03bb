package auth

import "errors"

var (
	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
	ErrInvalidInput  = errors.New("auth: invalid input")

	// Login failure taxonomy. The HTTP boundary collapses most of these
	// into a uniform rejection; tests assert on the distinct causes.
	ErrInvalidCredentials       = errors.New("auth: invalid credentials")
	ErrAccountDisabled          = errors.New("auth: account disabled")
	ErrAccountLocked            = errors.New("auth: account locked")
	ErrPasswordExpired          = errors.New("auth: password expired")
	ErrPasswordChangeNotAllowed = errors.New("auth: password change not allowed")

	ErrPermissionDenied = errors.New("auth: permission denied")
)
