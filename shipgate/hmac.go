package shipgate

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
)

// ComputeRequestHMAC computes the lowercase hex HMAC-SHA256 digest of the
// canonical request descriptor.
//
// The four descriptor fields are written to the MAC in order with no
// delimiters between them. Both the client signer and the server verifier
// call this with descriptors built by the functions in descriptor.go.
func ComputeRequestHMAC(secret []byte, d RequestDescriptor) string {
	mac := hmac.New(sha256.New, secret)
	io.WriteString(mac, d.Protocol)
	io.WriteString(mac, d.Host)
	io.WriteString(mac, d.Path)
	io.WriteString(mac, d.Authorization)
	return hex.EncodeToString(mac.Sum(nil))
}

// verifyRequestHMAC recomputes the digest for the descriptor and compares it
// to the presented hex digest over the full length in constant time.
func verifyRequestHMAC(secret []byte, d RequestDescriptor, presentedHex string) bool {
	presented, err := hex.DecodeString(presentedHex)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	io.WriteString(mac, d.Protocol)
	io.WriteString(mac, d.Host)
	io.WriteString(mac, d.Path)
	io.WriteString(mac, d.Authorization)
	return hmac.Equal(presented, mac.Sum(nil))
}

// DeriveDynamicSecret obfuscates the static base64 secret with the raw bytes
// of the API key and returns the result re-encoded as base64.
//
// Each byte of the decoded secret is XORed with the corresponding API-key
// byte, stopping at the shorter of the two; bytes beyond that remain the
// static secret's. The derivation is deterministic and must run identically
// on client and server, including the truncation: an empty key leaves the
// secret unchanged, a key longer than the secret flips every secret byte.
func DeriveDynamicSecret(staticSecretB64 string, apiKey []byte) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(staticSecretB64)
	if err != nil {
		return "", fmt.Errorf("shipgate: decode static secret: %w", err)
	}
	n := len(secret)
	if len(apiKey) < n {
		n = len(apiKey)
	}
	for i := 0; i < n; i++ {
		secret[i] ^= apiKey[i]
	}
	return base64.StdEncoding.EncodeToString(secret), nil
}

// dynamicSecretBytes derives the dynamic secret and returns its raw bytes,
// the form the HMAC is keyed with.
func dynamicSecretBytes(staticSecretB64 string, apiKey []byte) ([]byte, error) {
	derived, err := DeriveDynamicSecret(staticSecretB64, apiKey)
	if err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(derived)
}
