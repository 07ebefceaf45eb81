package remote

import "errors"

var (
	// ErrLoginFailed is returned when the server rejects the credentials.
	ErrLoginFailed = errors.New("remote: login failed")

	// ErrRegistrationFailed is returned when the server refuses a new account.
	ErrRegistrationFailed = errors.New("remote: registration failed")

	// ErrUnexpectedStatus is returned for any other non-success response.
	ErrUnexpectedStatus = errors.New("remote: unexpected status")

	// ErrInvalidBaseURL is returned by New for a malformed server address.
	ErrInvalidBaseURL = errors.New("remote: invalid base url")
)
