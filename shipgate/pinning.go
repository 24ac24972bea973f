package shipgate

import (
	"crypto/sha256"
	"crypto/tls"
	"encoding/base64"
	"net"
	"net/http"
)

// PinKindPublicKeySHA256 is the pin kind requested from the attestor:
// base64 SHA-256 digests of certificate SubjectPublicKeyInfo structures.
const PinKindPublicKeySHA256 = "public-key-sha256"

// buildHTTPClient constructs the transport the client dispatches through.
// Pinning stages layer a pin check on top of standard certificate
// verification; hosts without a pin entry fall back to standard
// verification alone.
func (c *Client) buildHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: c.timeout}).DialContext,
		TLSHandshakeTimeout:   c.timeout,
		ResponseHeaderTimeout: c.timeout,
	}

	tlsCfg := &tls.Config{RootCAs: c.rootCAs}
	if (c.stage == StageCertPinning || c.stage == StageApproovAppAuth) && c.attestor != nil {
		pins := c.attestor.FetchPins(PinKindPublicKeySHA256)
		if len(pins) > 0 {
			tlsCfg.VerifyConnection = func(cs tls.ConnectionState) error {
				return verifyPins(pins, cs)
			}
		}
	}
	if tlsCfg.RootCAs != nil || tlsCfg.VerifyConnection != nil {
		transport.TLSClientConfig = tlsCfg
	}

	return &http.Client{
		Transport: transport,
		Timeout:   c.timeout,
	}
}

// verifyPins runs after standard certificate verification and accepts the
// connection if any presented certificate's SPKI digest matches a pin for
// the server name. The "*" entry pins hosts without their own entry.
func verifyPins(pins map[string][]string, cs tls.ConnectionState) error {
	hostPins, ok := pins[cs.ServerName]
	if !ok {
		hostPins = pins["*"]
	}
	if len(hostPins) == 0 {
		return nil
	}

	for _, cert := range cs.PeerCertificates {
		sum := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
		digest := base64.StdEncoding.EncodeToString(sum[:])
		for _, pin := range hostPins {
			if digest == pin {
				return nil
			}
		}
	}
	return ErrPinMismatch
}
