package shipgate

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// bindingResult reports how the token-binding check concluded.
type bindingResult int

const (
	// bindingMatched means the pay claim matched the bound header digest.
	bindingMatched bindingResult = iota

	// bindingNotEnforced means the token carries no pay claim at all; the
	// request is accepted degraded, for tokens minted before binding was
	// turned on.
	bindingNotEnforced

	// bindingMalformed means the pay claim exists but is empty or not a
	// string.
	bindingMalformed

	// bindingMismatched means the digest of the bound header does not match
	// the pay claim.
	bindingMismatched
)

// checkBinding recomputes base64(SHA-256(boundValue)) and compares it to the
// token's pay claim in constant time.
func checkBinding(claims *ApproovClaims, boundValue string) bindingResult {
	digest, present := claims.PayDigest()
	if !present {
		return bindingNotEnforced
	}
	if digest == "" {
		return bindingMalformed
	}
	sum := sha256.Sum256([]byte(boundValue))
	expected := base64.StdEncoding.EncodeToString(sum[:])
	if !hmac.Equal([]byte(digest), []byte(expected)) {
		return bindingMismatched
	}
	return bindingMatched
}

// BindingDigest returns the pay-claim value a token must carry to bind to
// the given header value. The client includes this digest when requesting
// attestation so the issued token is tied to the session.
func BindingDigest(boundValue string) string {
	sum := sha256.Sum256([]byte(boundValue))
	return base64.StdEncoding.EncodeToString(sum[:])
}
