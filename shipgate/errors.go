package shipgate

import (
	"errors"
	"net/http"
)

var (
	ErrMissingToken = errors.New("shipgate: approov token header absent")
	ErrInvalidToken = errors.New("shipgate: invalid approov token")
	ErrTokenExpired = errors.New("shipgate: approov token is expired")
	ErrPinMismatch  = errors.New("shipgate: tls certificate pin mismatch")
	ErrNoConfigBlob = errors.New("shipgate: no dynamic config blob stored")
)

// ErrorKind classifies an authentication failure.
//
// Gates return a kind instead of signalling through distinct error values so
// callers can branch on the classification without comparing error
// identities.
type ErrorKind int

const (
	// KindMissingCredential means a required header was absent or empty.
	KindMissingCredential ErrorKind = iota + 1

	// KindInvalidCredential means the credential was presented but failed
	// verification: an unknown API key, an HMAC mismatch, or a bad token
	// signature.
	KindInvalidCredential

	// KindBindingMismatch means the Approov token verified but its binding
	// claim does not match the bound request header.
	KindBindingMismatch

	// KindMalformedCredential means a credential was structurally unusable,
	// such as a binding claim that is present but not a string.
	KindMalformedCredential
)

// HTTPStatus maps the kind to the response status used when a gate rejects:
// 400 for well-formed requests missing a credential, 401 for everything
// recognized but invalid.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindMissingCredential, KindMalformedCredential:
		return http.StatusBadRequest
	case KindInvalidCredential, KindBindingMismatch:
		return http.StatusUnauthorized
	default:
		return http.StatusUnauthorized
	}
}

func (k ErrorKind) String() string {
	switch k {
	case KindMissingCredential:
		return "missing-credential"
	case KindInvalidCredential:
		return "invalid-credential"
	case KindBindingMismatch:
		return "binding-mismatch"
	case KindMalformedCredential:
		return "malformed-credential"
	default:
		return "unknown"
	}
}

// AuthError is the tagged rejection produced by a gate.
type AuthError struct {
	Kind    ErrorKind
	Message string
}

func (e *AuthError) Error() string {
	return "shipgate: " + e.Message
}

func missingCredential(msg string) *AuthError {
	return &AuthError{Kind: KindMissingCredential, Message: msg}
}

func invalidCredential(msg string) *AuthError {
	return &AuthError{Kind: KindInvalidCredential, Message: msg}
}
