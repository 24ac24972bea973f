package shipgate

import "context"

type apiKeyKeyType struct{}
type approovClaimsKeyType struct{}
type requestIDKeyType struct{}

var (
	apiKeyKey        = apiKeyKeyType{}
	approovClaimsKey = approovClaimsKeyType{}
	requestIDKey     = requestIDKeyType{}
)

// withAPIKey returns a new context carrying the validated API key.
//
// Downstream consumers include the dynamic-secret derivation and any
// business handler that keys behavior off the deployment.
func withAPIKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, apiKeyKey, key)
}

// APIKeyFromContext extracts the API key attached by the API-key gate.
//
// The boolean return value is false if the gate did not run or rejected the
// request.
func APIKeyFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(apiKeyKey).(string)
	return key, ok
}

// withApproovClaims returns a new context carrying the verified token claims.
func withApproovClaims(ctx context.Context, claims *ApproovClaims) context.Context {
	return context.WithValue(ctx, approovClaimsKey, claims)
}

// ApproovClaimsFromContext extracts the verified Approov token claims.
//
// The boolean return value is false when the Approov gate was inactive,
// or when it was degraded to warn-only and the token did not verify.
func ApproovClaimsFromContext(ctx context.Context) (*ApproovClaims, bool) {
	claims, ok := ctx.Value(approovClaimsKey).(*ApproovClaims)
	return claims, ok
}

// withRequestID returns a new context carrying the correlation id.
func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation id the chain assigned to
// this request. It is present whether the request was accepted or rejected.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok
}
