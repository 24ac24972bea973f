package shipgate

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// AuthenticationOutcome is the terminal result of the gate chain for one
// request: produced by whichever gate first rejects, or marked accepted when
// every active gate passes.
type AuthenticationOutcome struct {
	Accepted     bool
	HTTPStatus   int
	ErrorKind    ErrorKind
	ErrorMessage string
	RequestID    string
}

func acceptedOutcome(requestID string) AuthenticationOutcome {
	return AuthenticationOutcome{Accepted: true, RequestID: requestID}
}

func rejectedOutcome(requestID string, err *AuthError) AuthenticationOutcome {
	return AuthenticationOutcome{
		HTTPStatus:   err.Kind.HTTPStatus(),
		ErrorKind:    err.Kind,
		ErrorMessage: err.Message,
		RequestID:    requestID,
	}
}

// newRequestID derives a log-correlation id from the claimed identity: a
// truncated SHA-256 of the raw Authorization value, so the same caller
// correlates across requests without the credential itself appearing in
// logs. Requests that claim no identity get a random id.
func newRequestID(authorization string) string {
	if authorization == "" {
		return uuid.NewString()[:8]
	}
	sum := sha256.Sum256([]byte(authorization))
	return hex.EncodeToString(sum[:8])
}
