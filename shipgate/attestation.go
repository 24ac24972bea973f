package shipgate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FetchStatus is the attestation SDK's verdict for one token fetch.
type FetchStatus int

const (
	StatusSuccess FetchStatus = iota
	StatusNoNetwork
	StatusPoorNetwork
	StatusMITMDetected
	StatusRejected
	StatusDisabled
	StatusUnknown
)

// Transient reports whether the status should be retried by the caller
// rather than surfaced as a hard failure: network trouble and suspected
// interception resolve themselves on a later attempt, everything else does
// not.
func (s FetchStatus) Transient() bool {
	switch s {
	case StatusNoNetwork, StatusPoorNetwork, StatusMITMDetected:
		return true
	default:
		return false
	}
}

func (s FetchStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusNoNetwork:
		return "no-network"
	case StatusPoorNetwork:
		return "poor-network"
	case StatusMITMDetected:
		return "mitm-detected"
	case StatusRejected:
		return "rejected"
	case StatusDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// AttestationResult is what the attestation SDK produces for one outbound
// API call. The token is consumed once, by the request it was fetched for.
type AttestationResult struct {
	Token string

	// ConfigChanged signals that the SDK received new dynamic configuration
	// (pins included); the holder must persist the new blob and rebuild its
	// HTTP client before the next call.
	ConfigChanged bool

	Status FetchStatus
}

// Attestor is the closed attestation SDK as the client sees it: an opaque
// box that produces tokens, certificate pins and configuration blobs.
// Implementations may block for the duration of the fetch; the client
// bounds the call with its request context.
type Attestor interface {
	// FetchToken attests the app and returns a token for the given URL.
	FetchToken(ctx context.Context, url string) (AttestationResult, error)

	// FetchPins returns the current certificate pins, a map from hostname
	// to base64 SPKI SHA-256 digests.
	FetchPins(kind string) map[string][]string

	// FetchConfig returns the current dynamic configuration blob.
	FetchConfig() string
}

// AttestationError wraps a non-success fetch status. Callers classify it
// via Transient rather than inspecting the status directly.
type AttestationError struct {
	Status FetchStatus
}

func (e *AttestationError) Error() string {
	return fmt.Sprintf("shipgate: attestation fetch failed: %s", e.Status)
}

// Transient reports whether the failed fetch is worth retrying.
func (e *AttestationError) Transient() bool {
	return e.Status.Transient()
}

// IsTransient reports whether err represents a retryable condition: a
// transient attestation failure or a pin mismatch that already triggered a
// client rebuild.
func IsTransient(err error) bool {
	var ae *AttestationError
	if errors.As(err, &ae) {
		return ae.Transient()
	}
	return errors.Is(err, ErrPinMismatch)
}

// ConfigStore persists the single live dynamic-configuration blob. Stale
// blobs are overwritten whole, never merged.
type ConfigStore interface {
	// Load returns the stored blob, or ErrNoConfigBlob when none exists.
	Load() (string, error)

	// Save replaces the stored blob.
	Save(blob string) error
}

// fileConfigStore keeps the blob in a single file, replaced atomically via
// a temp-file rename so a crash mid-write never leaves a torn blob.
type fileConfigStore struct {
	path string
}

// NewFileConfigStore returns a ConfigStore backed by the file at path.
func NewFileConfigStore(path string) ConfigStore {
	return &fileConfigStore{path: path}
}

func (f *fileConfigStore) Load() (string, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return "", ErrNoConfigBlob
	}
	if err != nil {
		return "", fmt.Errorf("shipgate: read config blob: %w", err)
	}
	return string(data), nil
}

func (f *fileConfigStore) Save(blob string) error {
	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".shipgate-config-*")
	if err != nil {
		return fmt.Errorf("shipgate: stage config blob: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(blob); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("shipgate: write config blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("shipgate: write config blob: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("shipgate: replace config blob: %w", err)
	}
	return nil
}
