package shipgate

import (
	"encoding/json"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// ApproovClaims is the payload of a verified Approov attestation token.
//
// Pay is kept untyped because the binding verifier distinguishes three
// shapes: absent (binding not enforced for this token), a non-empty string
// (the base64 SHA-256 digest of the bound header value), and anything else
// (malformed, rejected). An explicit JSON null counts as present.
type ApproovClaims struct {
	Pay any `json:"pay,omitempty"`

	payPresent bool

	jwt.RegisteredClaims
}

// UnmarshalJSON records whether the pay claim appeared in the payload at
// all, so an explicit null is still seen as a present binding claim instead
// of collapsing into binding-not-enforced.
func (c *ApproovClaims) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &c.RegisteredClaims); err != nil {
		return err
	}

	var payload struct {
		Pay json.RawMessage `json:"pay"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	if payload.Pay == nil {
		return nil
	}

	c.payPresent = true
	return json.Unmarshal(payload.Pay, &c.Pay)
}

// PayDigest returns the binding digest when the pay claim is a non-empty
// string. present reports whether the claim exists at all in the payload.
func (c *ApproovClaims) PayDigest() (digest string, present bool) {
	if !c.payPresent && c.Pay == nil {
		return "", false
	}
	s, _ := c.Pay.(string)
	return s, true
}

// tokenVerifier checks compact Approov tokens: HMAC-SHA256 signed JWTs.
//
// The parser is pinned to the HS256 algorithm, so a token claiming an
// asymmetric or "none" algorithm fails before any signature work.
type tokenVerifier struct {
	secret []byte
}

func (v *tokenVerifier) verify(tokenString string) (*ApproovClaims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithLeeway(clockSkew),
	)

	token, err := parser.ParseWithClaims(
		tokenString,
		&ApproovClaims{},
		v.keyFunc,
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*ApproovClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (v *tokenVerifier) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, ErrInvalidToken
	}
	return v.secret, nil
}
