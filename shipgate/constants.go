package shipgate

import "time"

const (
	// HeaderAPIKey carries the deployment API key on every protected request.
	//
	// The key doubles as the obfuscation input for the dynamic HMAC secret,
	// so it must be present on HMAC-dynamic requests even before the
	// allow-list check runs.
	HeaderAPIKey = "API-KEY"

	// HeaderHMAC carries the lowercase hex HMAC-SHA256 digest of the
	// canonical request descriptor (see RequestDescriptor).
	HeaderHMAC = "HMAC"

	// HeaderApproovToken carries the compact Approov attestation token
	// (base64url header.payload.signature).
	HeaderApproovToken = "Approov-Token"

	// HeaderAuthorization is the user-identity bearer header. Its raw value,
	// including the "Bearer " prefix, is part of the HMAC canonicalization
	// and is the default token-binding target.
	HeaderAuthorization = "Authorization"

	// HeaderRequestID is set on every rejection response so a caller can
	// correlate its logs with the server's without either side logging the
	// raw credential.
	HeaderRequestID = "Shipgate-Request-Id"

	// DefaultBoundHeader is the request header whose value the Approov token
	// is bound to unless Config.BoundHeader overrides it. Client and server
	// must agree on this name.
	DefaultBoundHeader = HeaderAuthorization

	// clockSkew is the leeway allowed when validating Approov token
	// timestamps, covering small clock drift between the attestation
	// service and this server.
	clockSkew = 2 * time.Minute

	// ClientTimeout bounds every outbound client operation: connect, TLS
	// handshake, and response headers. Exceeding it is a transient failure,
	// never a fatal one.
	ClientTimeout = 2 * time.Second
)
