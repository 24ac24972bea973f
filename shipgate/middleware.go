package shipgate

import (
	"errors"
	"net/http"
)

// Authenticate returns middleware that runs the active stage's gate chain
// over every request.
//
// Gate order is fixed: Approov token → token binding → request HMAC →
// API key. A stage activates only its own gates; the rest are never
// invoked. The first rejecting gate short-circuits with its outcome's HTTP
// status, and the correlation id is echoed in the Shipgate-Request-Id
// response header so a rejected caller can quote it.
//
// On acceptance the request context carries the correlation id, the
// validated API key, and (for the Approov stage) the verified token claims
// before the next handler runs. User-identity verification is deliberately
// not part of this chain; hang it off the handler side so it only ever sees
// requests that passed every active gate.
func (s *SDK) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r, outcome := s.Check(r)
		if !outcome.Accepted {
			s.logger.Printf("shipgate: request %s rejected (%s): %s",
				outcome.RequestID, outcome.ErrorKind, outcome.ErrorMessage)
			w.Header().Set(HeaderRequestID, outcome.RequestID)
			http.Error(w, outcome.ErrorMessage, outcome.HTTPStatus)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Check runs the gate chain without writing a response, returning the
// (possibly annotated) request and the terminal outcome. Authenticate is a
// thin wrapper over it; tests and non-middleware hosts can call it directly.
func (s *SDK) Check(r *http.Request) (*http.Request, AuthenticationOutcome) {
	requestID := newRequestID(r.Header.Get(HeaderAuthorization))
	r = r.WithContext(withRequestID(r.Context(), requestID))

	if s.stage == StageApproovAppAuth {
		claims, authErr := s.approovGate(r, requestID)
		if authErr != nil {
			return r, rejectedOutcome(requestID, authErr)
		}
		if claims != nil {
			r = r.WithContext(withApproovClaims(r.Context(), claims))
			if authErr := s.bindingGate(r, claims, requestID); authErr != nil {
				return r, rejectedOutcome(requestID, authErr)
			}
		}
	}

	if s.stage == StageHMACStatic || s.stage == StageHMACDynamic {
		if authErr := s.hmacGate(r); authErr != nil {
			return r, rejectedOutcome(requestID, authErr)
		}
	}

	key, authErr := s.checkAPIKey(r)
	if authErr != nil {
		return r, rejectedOutcome(requestID, authErr)
	}
	r = r.WithContext(withAPIKey(r.Context(), key))

	return r, acceptedOutcome(requestID)
}

// approovGate verifies the attestation token. A missing header is kept
// distinct from a present-but-invalid token so the two log differently.
// When the warn-only policy is set, both cases log and continue with nil
// claims instead of rejecting, which also skips the binding gate.
func (s *SDK) approovGate(r *http.Request, requestID string) (*ApproovClaims, *AuthError) {
	tokenString := r.Header.Get(HeaderApproovToken)
	claims, err := s.verifier.verify(tokenString)
	if err == nil {
		return claims, nil
	}

	if errors.Is(err, ErrMissingToken) {
		if s.warnOnInvalidToken {
			s.logger.Printf("shipgate: request %s proceeding without Approov token", requestID)
			return nil, nil
		}
		return nil, missingCredential("Approov-Token header absent")
	}

	if s.warnOnInvalidToken {
		s.logger.Printf("shipgate: request %s proceeding with unverified Approov token: %v", requestID, err)
		return nil, nil
	}
	return nil, invalidCredential("Approov token did not verify")
}

// bindingGate ties the verified token to the bound request header. Tokens
// minted without a pay claim are accepted degraded, for compatibility with
// clients attested before binding was enabled.
func (s *SDK) bindingGate(r *http.Request, claims *ApproovClaims, requestID string) *AuthError {
	switch checkBinding(claims, r.Header.Get(s.boundHeader)) {
	case bindingMatched:
		return nil

	case bindingNotEnforced:
		s.logger.Printf("shipgate: request %s accepted without token binding", requestID)
		return nil

	case bindingMalformed:
		return &AuthError{Kind: KindMalformedCredential, Message: "token binding claim malformed"}

	default:
		if s.warnOnInvalidBinding {
			s.logger.Printf("shipgate: request %s proceeding despite token binding mismatch", requestID)
			return nil
		}
		return &AuthError{Kind: KindBindingMismatch, Message: "token binding mismatch"}
	}
}

// hmacGate recomputes the request HMAC with the stage's secret. The dynamic
// stage derives the secret from the presented API key, so that header must
// exist before the allow-list gate has had its turn.
func (s *SDK) hmacGate(r *http.Request) *AuthError {
	presented := r.Header.Get(HeaderHMAC)
	if presented == "" {
		return missingCredential("HMAC header absent")
	}

	secret := s.staticSecret
	if s.stage == StageHMACDynamic {
		apiKey := r.Header.Get(HeaderAPIKey)
		if apiKey == "" {
			return missingCredential("API-KEY header absent")
		}
		derived, err := dynamicSecretBytes(s.staticSecretB64, []byte(apiKey))
		if err != nil {
			return invalidCredential("dynamic secret derivation failed")
		}
		secret = derived
	}

	if !verifyRequestHMAC(secret, DescriptorFromRequest(r, s.protocol), presented) {
		return invalidCredential("request HMAC mismatch")
	}
	return nil
}
