package shipgate

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log"
)

// SDK hosts the server-side authentication chain for one deployment.
//
// It is constructed once from an immutable Config and is safe for
// concurrent use: every gate is a pure function over a single request, and
// the only shared state is the read-only configuration captured here.
type SDK struct {
	stage                Stage
	apiKeys              []string
	staticSecret         []byte
	staticSecretB64      string
	verifier             *tokenVerifier
	boundHeader          string
	protocol             string
	warnOnInvalidToken   bool
	warnOnInvalidBinding bool
	logger               *log.Logger
}

// New validates cfg and constructs the SDK.
func New(cfg Config) (*SDK, error) {
	if _, err := ParseStage(string(cfg.Stage)); err != nil {
		return nil, err
	}

	if len(cfg.APIKeys) == 0 {
		return nil, errors.New("shipgate: at least one API key is required")
	}
	for _, key := range cfg.APIKeys {
		if key == "" {
			return nil, errors.New("shipgate: empty API key in allow-list")
		}
	}

	s := &SDK{
		stage:                cfg.Stage,
		apiKeys:              append([]string(nil), cfg.APIKeys...),
		staticSecretB64:      cfg.HMACSecret,
		boundHeader:          cfg.BoundHeader,
		protocol:             cfg.Protocol,
		warnOnInvalidToken:   cfg.WarnOnInvalidToken,
		warnOnInvalidBinding: cfg.WarnOnInvalidBinding,
		logger:               cfg.Logger,
	}
	if s.boundHeader == "" {
		s.boundHeader = DefaultBoundHeader
	}
	if s.logger == nil {
		s.logger = log.Default()
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
		s.staticSecret = secret

	case StageApproovAppAuth:
		if cfg.ApproovSecret == "" {
			return nil, fmt.Errorf("shipgate: stage %s requires the Approov secret", cfg.Stage)
		}
		secret, err := base64.StdEncoding.DecodeString(cfg.ApproovSecret)
		if err != nil {
			return nil, fmt.Errorf("shipgate: Approov secret is not valid base64: %w", err)
		}
		s.verifier = &tokenVerifier{secret: secret}
	}

	return s, nil
}

// Stage reports the active authentication stage.
func (s *SDK) Stage() Stage {
	return s.stage
}
