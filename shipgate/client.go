package shipgate

import (
	"context"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"
)

// ClientOption configures a Client at construction time.
type ClientOption func(*Client)

// WithConfigStore persists the attestation SDK's dynamic configuration blob
// whenever a token fetch reports a configuration change. Without a store the
// change still triggers a client rebuild, it just is not persisted across
// restarts.
func WithConfigStore(store ConfigStore) ClientOption {
	return func(c *Client) {
		c.store = store
	}
}

// WithTimeout overrides the per-operation timeout. The default is
// ClientTimeout; exceeding it surfaces as a transport error the caller
// should treat as transient.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// ClientConfig defines the configuration required to build a signing Client.
type ClientConfig struct {
	// Stage selects which credentials are attached before dispatch. It must
	// match the server's active stage.
	Stage Stage

	// APIKey is attached to every request and feeds the dynamic-secret
	// derivation on the HMAC-dynamic stage.
	APIKey string

	// HMACSecret is the static signing secret, base64. Required for the
	// HMAC stages.
	HMACSecret string

	// BoundHeader names the header the Approov token is bound to.
	// Defaults to the Authorization header.
	BoundHeader string

	// RootCAs overrides the system roots when verifying server certificates.
	// Deployments serving self-issued certificates set this; pin checks still
	// run on top of it.
	RootCAs *x509.CertPool

	// Logger receives rebuild and degradation logs. If nil, log.Default()
	// is used.
	Logger *log.Logger
}

// BindingAttestor is implemented by attestors that support token binding:
// the digest set here is embedded as the pay claim of the next issued token.
type BindingAttestor interface {
	SetBindingDigest(digest string)
}

// Client mirrors the server's canonicalization to attach the stage's
// credentials to outbound requests before dispatch.
//
// It owns a pinned HTTP client that is rebuilt, at most once per
// configuration change, when the attestation SDK reports new dynamic
// configuration or a TLS pin mismatch aborts a call. The rebuild is guarded
// by a mutex and a generation counter so concurrent callers neither race
// the rebuild nor trigger one each.
type Client struct {
	stage        Stage
	apiKey       string
	secretB64    string
	staticSecret []byte
	boundHeader  string
	rootCAs      *x509.CertPool
	attestor     Attestor
	store        ConfigStore
	logger       *log.Logger
	timeout      time.Duration

	mu            sync.Mutex
	httpClient    *http.Client
	generation    uint64
	rebuildNeeded bool
}

// NewClient validates cfg and constructs a Client. attestor may be nil for
// stages that do not attest (it is required for cert-pinning and Approov).
func NewClient(cfg ClientConfig, attestor Attestor, opts ...ClientOption) (*Client, error) {
	if _, err := ParseStage(string(cfg.Stage)); err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, errors.New("shipgate: client API key is required")
	}

	c := &Client{
		stage:       cfg.Stage,
		apiKey:      cfg.APIKey,
		secretB64:   cfg.HMACSecret,
		boundHeader: cfg.BoundHeader,
		rootCAs:     cfg.RootCAs,
		attestor:    attestor,
		logger:      cfg.Logger,
		timeout:     ClientTimeout,
	}
	if c.boundHeader == "" {
		c.boundHeader = DefaultBoundHeader
	}
	if c.logger == nil {
		c.logger = log.Default()
	}

	switch cfg.Stage {
	case StageHMACStatic, StageHMACDynamic:
		if cfg.HMACSecret == "" {
			return nil, fmt.Errorf("shipgate: stage %s requires an HMAC secret", cfg.Stage)
		}
		secret, err := base64.StdEncoding.DecodeString(cfg.HMACSecret)
		if err != nil {
			return nil, fmt.Errorf("shipgate: HMAC secret is not valid base64: %w", err)
		}
		c.staticSecret = secret

	case StageCertPinning, StageApproovAppAuth:
		if attestor == nil {
			return nil, fmt.Errorf("shipgate: stage %s requires an attestor", cfg.Stage)
		}
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Sign attaches the active stage's credential headers to req.
//
// The caller must have already set the Authorization header (and any other
// bound header), because its raw value participates in both the HMAC
// canonicalization and the token binding. For the Approov stage this blocks
// on the token fetch; no request departs without a completed fetch.
func (c *Client) Sign(ctx context.Context, req *http.Request) error {
	req.Header.Set(HeaderAPIKey, c.apiKey)

	switch c.stage {
	case StageHMACStatic:
		digest := ComputeRequestHMAC(c.staticSecret, descriptorFromOutbound(req))
		req.Header.Set(HeaderHMAC, digest)

	case StageHMACDynamic:
		secret, err := dynamicSecretBytes(c.secretB64, []byte(c.apiKey))
		if err != nil {
			return err
		}
		req.Header.Set(HeaderHMAC, ComputeRequestHMAC(secret, descriptorFromOutbound(req)))

	case StageApproovAppAuth:
		if err := c.attachToken(ctx, req); err != nil {
			return err
		}
	}

	return nil
}

// attachToken runs one attestation round for req: bind, fetch, persist any
// configuration change, classify the status, attach the token.
func (c *Client) attachToken(ctx context.Context, req *http.Request) error {
	if ba, ok := c.attestor.(BindingAttestor); ok {
		if bound := req.Header.Get(c.boundHeader); bound != "" {
			ba.SetBindingDigest(BindingDigest(bound))
		}
	}

	result, err := c.attestor.FetchToken(ctx, req.URL.String())
	if err != nil {
		return fmt.Errorf("shipgate: fetch approov token: %w", err)
	}

	if result.ConfigChanged {
		c.onConfigChanged()
	}

	if result.Status != StatusSuccess {
		return &AttestationError{Status: result.Status}
	}

	req.Header.Set(HeaderApproovToken, result.Token)
	return nil
}

// Do signs req and dispatches it through the pinned HTTP client.
//
// If the TLS layer reports a pin mismatch, the call is aborted, the client
// rebuilt with fresh pins, and the request reissued exactly once. A second
// failure is returned to the caller, still classified transient (see
// IsTransient) since fresh pins plus a retry usually clear it.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if err := c.Sign(ctx, req); err != nil {
		return nil, err
	}

	hc, generation := c.client()
	resp, err := hc.Do(req)
	if err == nil || !errors.Is(err, ErrPinMismatch) {
		return resp, err
	}

	c.logger.Printf("shipgate: pin mismatch on %s, rebuilding client and retrying once", req.URL.Host)
	c.invalidate(generation)
	hc, _ = c.client()

	retry := req.Clone(ctx)
	if req.GetBody != nil {
		body, bodyErr := req.GetBody()
		if bodyErr != nil {
			return nil, bodyErr
		}
		retry.Body = body
	}
	return hc.Do(retry)
}

// onConfigChanged persists the new blob and schedules exactly one rebuild
// before the next call.
func (c *Client) onConfigChanged() {
	if c.store != nil {
		if err := c.store.Save(c.attestor.FetchConfig()); err != nil {
			c.logger.Printf("shipgate: persist dynamic config: %v", err)
		}
	}

	c.mu.Lock()
	c.rebuildNeeded = true
	c.mu.Unlock()
}

// client returns the current HTTP client, rebuilding it first if a
// configuration change or pin mismatch flagged it stale. The generation
// counter lets invalidate skip a rebuild another caller already performed.
func (c *Client) client() (*http.Client, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.httpClient == nil || c.rebuildNeeded {
		c.httpClient = c.buildHTTPClient()
		c.rebuildNeeded = false
		c.generation++
	}
	return c.httpClient, c.generation
}

func (c *Client) invalidate(generation uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation == c.generation {
		c.rebuildNeeded = true
	}
}
