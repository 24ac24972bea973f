package shipgate

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testAPIKey        = "test-deployment-key"
	testHMACSecretB64 = "AAAA"
)

var testApproovSecretB64 = base64.StdEncoding.EncodeToString([]byte("approov-shared-secret"))

func newStageSDK(t *testing.T, mutate func(*Config)) *SDK {
	t.Helper()

	cfg := Config{
		Stage:         StageAPIKey,
		APIKeys:       []string{testAPIKey},
		HMACSecret:    testHMACSecretB64,
		ApproovSecret: testApproovSecretB64,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	sdk, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create sdk: %v", err)
	}
	return sdk
}

func serveAuthenticated(t *testing.T, sdk *SDK, req *http.Request) (*httptest.ResponseRecorder, bool) {
	t.Helper()

	called := false
	handler := sdk.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, called
}

func TestAPIKeyStage_ValidKeyNoHMAC(t *testing.T) {
	sdk := newStageSDK(t, nil)

	// No HMAC header: the HMAC gate is inactive on this stage and must be
	// skipped entirely.
	req := httptest.NewRequest(http.MethodGet, "/shipments/1", nil)
	req.Header.Set(HeaderAPIKey, testAPIKey)

	rec, called := serveAuthenticated(t, sdk, req)
	if !called {
		t.Fatal("handler should have been called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

func TestAPIKeyStage_MissingKey(t *testing.T) {
	sdk := newStageSDK(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/shipments/1", nil)

	rec, called := serveAuthenticated(t, sdk, req)
	if called {
		t.Fatal("handler should not have been called")
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if rec.Header().Get(HeaderRequestID) == "" {
		t.Fatal("expected a request id on the rejection")
	}
}

func TestAPIKeyStage_UnknownKey(t *testing.T) {
	sdk := newStageSDK(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/shipments/1", nil)
	req.Header.Set(HeaderAPIKey, "not-a-known-key")

	rec, called := serveAuthenticated(t, sdk, req)
	if called {
		t.Fatal("handler should not have been called")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestAPIKeyStage_AnnotatesContext(t *testing.T) {
	sdk := newStageSDK(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/shipments/1", nil)
	req.Header.Set(HeaderAPIKey, testAPIKey)

	annotated, outcome := sdk.Check(req)
	if !outcome.Accepted {
		t.Fatalf("expected acceptance, got %+v", outcome)
	}

	key, ok := APIKeyFromContext(annotated.Context())
	if !ok || key != testAPIKey {
		t.Fatalf("expected API key in context, got %q (%v)", key, ok)
	}
	if _, ok := RequestIDFromContext(annotated.Context()); !ok {
		t.Fatal("expected request id in context")
	}
}

func signedHMACRequest(t *testing.T, target, authorization string, dynamic bool) *http.Request {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set(HeaderAuthorization, authorization)
	req.Header.Set(HeaderAPIKey, testAPIKey)

	secret, err := base64.StdEncoding.DecodeString(testHMACSecretB64)
	if err != nil {
		t.Fatalf("failed to decode secret: %v", err)
	}
	if dynamic {
		secret, err = dynamicSecretBytes(testHMACSecretB64, []byte(testAPIKey))
		if err != nil {
			t.Fatalf("failed to derive dynamic secret: %v", err)
		}
	}

	req.Header.Set(HeaderHMAC, ComputeRequestHMAC(secret, DescriptorFromRequest(req, "")))
	return req
}

func TestHMACStaticStage_ValidSignature(t *testing.T) {
	sdk := newStageSDK(t, func(cfg *Config) {
		cfg.Stage = StageHMACStatic
	})

	req := signedHMACRequest(t, "https://api.example.com/shipments/1", "Bearer xyz", false)

	rec, called := serveAuthenticated(t, sdk, req)
	if !called {
		t.Fatal("handler should have been called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

func TestHMACStaticStage_TamperedPath(t *testing.T) {
	sdk := newStageSDK(t, func(cfg *Config) {
		cfg.Stage = StageHMACStatic
	})

	signed := signedHMACRequest(t, "https://api.example.com/shipments/1", "Bearer xyz", false)

	// Replay the original digest against a different path.
	req := httptest.NewRequest(http.MethodGet, "https://api.example.com/shipments/2", nil)
	req.Header.Set(HeaderAuthorization, "Bearer xyz")
	req.Header.Set(HeaderAPIKey, testAPIKey)
	req.Header.Set(HeaderHMAC, signed.Header.Get(HeaderHMAC))

	rec, called := serveAuthenticated(t, sdk, req)
	if called {
		t.Fatal("handler should not have been called")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestHMACStaticStage_MissingHeader(t *testing.T) {
	sdk := newStageSDK(t, func(cfg *Config) {
		cfg.Stage = StageHMACStatic
	})

	req := httptest.NewRequest(http.MethodGet, "https://api.example.com/shipments/1", nil)
	req.Header.Set(HeaderAPIKey, testAPIKey)

	rec, _ := serveAuthenticated(t, sdk, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestHMACDynamicStage_ValidSignature(t *testing.T) {
	sdk := newStageSDK(t, func(cfg *Config) {
		cfg.Stage = StageHMACDynamic
	})

	req := signedHMACRequest(t, "https://api.example.com/shipments/1?driver=7", "Bearer xyz", true)

	rec, called := serveAuthenticated(t, sdk, req)
	if !called {
		t.Fatal("handler should have been called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

func TestHMACDynamicStage_StaticSignatureRejected(t *testing.T) {
	sdk := newStageSDK(t, func(cfg *Config) {
		cfg.Stage = StageHMACDynamic
	})

	// A digest computed with the undistorted static secret must not verify
	// on the dynamic stage.
	req := signedHMACRequest(t, "https://api.example.com/shipments/1", "Bearer xyz", false)

	rec, _ := serveAuthenticated(t, sdk, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func approovRequest(t *testing.T, authorization string, claims jwt.Claims) *http.Request {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "https://api.example.com/shipments/1", nil)
	req.Header.Set(HeaderAPIKey, testAPIKey)
	req.Header.Set(HeaderAuthorization, authorization)

	secret, err := base64.StdEncoding.DecodeString(testApproovSecretB64)
	if err != nil {
		t.Fatalf("failed to decode secret: %v", err)
	}
	req.Header.Set(HeaderApproovToken, signApproovToken(t, claims, secret))
	return req
}

func freshApproovClaims(pay any) ApproovClaims {
	return ApproovClaims{
		Pay: pay,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestApproovStage_BoundTokenAccepted(t *testing.T) {
	sdk := newStageSDK(t, func(cfg *Config) {
		cfg.Stage = StageApproovAppAuth
	})

	req := approovRequest(t, "Bearer xyz", freshApproovClaims(BindingDigest("Bearer xyz")))

	rec, called := serveAuthenticated(t, sdk, req)
	if !called {
		t.Fatal("handler should have been called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

func TestApproovStage_ReplayedTokenRejected(t *testing.T) {
	sdk := newStageSDK(t, func(cfg *Config) {
		cfg.Stage = StageApproovAppAuth
	})

	// Token bound to "Bearer xyz" replayed with a different session.
	req := approovRequest(t, "Bearer abc", freshApproovClaims(BindingDigest("Bearer xyz")))

	_, outcome := sdk.Check(req)
	if outcome.Accepted {
		t.Fatal("expected rejection")
	}
	if outcome.ErrorKind != KindBindingMismatch {
		t.Fatalf("expected binding mismatch, got %s", outcome.ErrorKind)
	}
	if outcome.HTTPStatus != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", outcome.HTTPStatus)
	}
}

func TestApproovStage_UnboundTokenAcceptedDegraded(t *testing.T) {
	sdk := newStageSDK(t, func(cfg *Config) {
		cfg.Stage = StageApproovAppAuth
	})

	req := approovRequest(t, "Bearer xyz", freshApproovClaims(nil))

	annotated, outcome := sdk.Check(req)
	if !outcome.Accepted {
		t.Fatalf("expected degraded acceptance, got %+v", outcome)
	}
	if _, ok := ApproovClaimsFromContext(annotated.Context()); !ok {
		t.Fatal("expected claims in context")
	}
}

func TestApproovStage_MalformedBindingClaim(t *testing.T) {
	sdk := newStageSDK(t, func(cfg *Config) {
		cfg.Stage = StageApproovAppAuth
	})

	req := approovRequest(t, "Bearer xyz", freshApproovClaims(""))

	_, outcome := sdk.Check(req)
	if outcome.Accepted {
		t.Fatal("expected rejection")
	}
	if outcome.HTTPStatus != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", outcome.HTTPStatus)
	}
}

func TestApproovStage_MissingToken(t *testing.T) {
	sdk := newStageSDK(t, func(cfg *Config) {
		cfg.Stage = StageApproovAppAuth
	})

	req := httptest.NewRequest(http.MethodGet, "https://api.example.com/shipments/1", nil)
	req.Header.Set(HeaderAPIKey, testAPIKey)

	_, outcome := sdk.Check(req)
	if outcome.Accepted {
		t.Fatal("expected rejection")
	}
	if outcome.ErrorKind != KindMissingCredential {
		t.Fatalf("expected missing-credential, got %s", outcome.ErrorKind)
	}
	if outcome.HTTPStatus != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", outcome.HTTPStatus)
	}
}

func TestApproovStage_WarnOnlyContinues(t *testing.T) {
	sdk := newStageSDK(t, func(cfg *Config) {
		cfg.Stage = StageApproovAppAuth
		cfg.WarnOnInvalidToken = true
	})

	req := httptest.NewRequest(http.MethodGet, "https://api.example.com/shipments/1", nil)
	req.Header.Set(HeaderAPIKey, testAPIKey)
	req.Header.Set(HeaderApproovToken, "definitely.not.valid")

	annotated, outcome := sdk.Check(req)
	if !outcome.Accepted {
		t.Fatalf("expected warn-only acceptance, got %+v", outcome)
	}
	if _, ok := ApproovClaimsFromContext(annotated.Context()); ok {
		t.Fatal("unverified token must not leave claims in the context")
	}
}

func TestApproovStage_NullBindingClaimRejected(t *testing.T) {
	sdk := newStageSDK(t, func(cfg *Config) {
		cfg.Stage = StageApproovAppAuth
	})

	req := approovRequest(t, "Bearer xyz", jwt.MapClaims{
		"pay": nil,
		"exp": jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	_, outcome := sdk.Check(req)
	if outcome.Accepted {
		t.Fatal("expected rejection")
	}
	if outcome.HTTPStatus != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", outcome.HTTPStatus)
	}
	if outcome.ErrorKind != KindMalformedCredential {
		t.Fatalf("expected KindMalformedCredential, got %v", outcome.ErrorKind)
	}
}

func TestApproovStage_BindingWarnOnlyContinues(t *testing.T) {
	sdk := newStageSDK(t, func(cfg *Config) {
		cfg.Stage = StageApproovAppAuth
		cfg.WarnOnInvalidBinding = true
	})

	req := approovRequest(t, "Bearer abc", freshApproovClaims(BindingDigest("Bearer xyz")))

	_, outcome := sdk.Check(req)
	if !outcome.Accepted {
		t.Fatalf("expected warn-only acceptance, got %+v", outcome)
	}
}

func TestRequestID_StablePerIdentity(t *testing.T) {
	sdk := newStageSDK(t, nil)

	first := httptest.NewRequest(http.MethodGet, "/shipments/1", nil)
	first.Header.Set(HeaderAuthorization, "Bearer xyz")
	second := httptest.NewRequest(http.MethodGet, "/shipments/2", nil)
	second.Header.Set(HeaderAuthorization, "Bearer xyz")

	_, firstOutcome := sdk.Check(first)
	_, secondOutcome := sdk.Check(second)

	if firstOutcome.RequestID != secondOutcome.RequestID {
		t.Fatalf("same identity produced different request ids: %s vs %s",
			firstOutcome.RequestID, secondOutcome.RequestID)
	}
	if firstOutcome.RequestID == "Bearer xyz" {
		t.Fatal("request id must not leak the raw credential")
	}
}

func TestNew_Validation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown stage", func(cfg *Config) { cfg.Stage = "mystery" }},
		{"no api keys", func(cfg *Config) { cfg.APIKeys = nil }},
		{"empty api key", func(cfg *Config) { cfg.APIKeys = []string{""} }},
		{"hmac stage without secret", func(cfg *Config) {
			cfg.Stage = StageHMACStatic
			cfg.HMACSecret = ""
		}},
		{"hmac secret not base64", func(cfg *Config) {
			cfg.Stage = StageHMACStatic
			cfg.HMACSecret = "%%bad%%"
		}},
		{"approov stage without secret", func(cfg *Config) {
			cfg.Stage = StageApproovAppAuth
			cfg.ApproovSecret = ""
		}},
	}

	for _, tc := range cases {
		cfg := Config{
			Stage:         StageAPIKey,
			APIKeys:       []string{testAPIKey},
			HMACSecret:    testHMACSecretB64,
			ApproovSecret: testApproovSecretB64,
		}
		tc.mutate(&cfg)
		if _, err := New(cfg); err == nil {
			t.Fatalf("%s: expected an error", tc.name)
		}
	}
}
