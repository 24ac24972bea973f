package shipgate

import (
	"fmt"
	"log"
)

// Stage selects the authentication scheme enforced for a deployment.
//
// Exactly one stage is active per process; it is chosen once from
// configuration and never changes at request time. Gates that are not
// implied by the active stage are never invoked.
type Stage string

const (
	// StageAPIKey enforces only the API-key allow-list.
	StageAPIKey Stage = "api-key"

	// StageHMACStatic additionally requires a request HMAC computed with
	// the static shared secret.
	StageHMACStatic Stage = "hmac-static"

	// StageHMACDynamic requires a request HMAC computed with the secret
	// derived by XOR-obfuscating the static secret with the API key.
	StageHMACDynamic Stage = "hmac-dynamic"

	// StageCertPinning pins the TLS channel on the client side; the server
	// enforces the same gates as StageAPIKey.
	StageCertPinning Stage = "cert-pinning"

	// StageApproovAppAuth requires a verified Approov attestation token
	// plus its token binding.
	StageApproovAppAuth Stage = "approov-app-auth"
)

// ParseStage converts a configuration string into a Stage.
func ParseStage(s string) (Stage, error) {
	switch Stage(s) {
	case StageAPIKey, StageHMACStatic, StageHMACDynamic, StageCertPinning, StageApproovAppAuth:
		return Stage(s), nil
	default:
		return "", fmt.Errorf("shipgate: unknown auth stage %q", s)
	}
}

// Config defines the configuration required to initialize the shipgate SDK.
//
// New performs strict validation and returns an error if a field required by
// the selected stage is missing or malformed. The resulting SDK treats the
// configuration as immutable.
type Config struct {
	// Stage selects the active authentication scheme.
	Stage Stage

	// APIKeys is the allow-list of valid deployment API keys. At least one
	// key is required for every stage.
	APIKeys []string

	// HMACSecret is the static request-signing secret, base64 (standard
	// encoding). Required for the HMAC stages.
	HMACSecret string

	// ApproovSecret is the base64 secret the Approov service signs tokens
	// with. Required for StageApproovAppAuth.
	ApproovSecret string

	// BoundHeader names the request header the Approov token binding covers.
	// Defaults to the Authorization header. Client and server must agree.
	BoundHeader string

	// Protocol, when non-empty, overrides the scheme used in the HMAC
	// canonicalization ("https" or "http"). Set it when TLS terminates at a
	// proxy in front of this server, where the request itself arrives
	// without TLS state.
	Protocol string

	// WarnOnInvalidToken downgrades an invalid or missing Approov token
	// from a rejection to a warning log. The zero value rejects, matching
	// the default abort-on-invalid-token policy.
	WarnOnInvalidToken bool

	// WarnOnInvalidBinding downgrades a token-binding mismatch from a
	// rejection to a warning log. The zero value rejects.
	WarnOnInvalidBinding bool

	// Logger receives gate rejection and degradation logs.
	// If nil, log.Default() is used.
	Logger *log.Logger
}
