package shipgate

import (
	"crypto/subtle"
	"net/http"
)

// checkAPIKey validates the API-KEY header against the configured
// allow-list and returns the accepted key.
//
// An absent or empty header is a missing credential (400); a present key
// that is not allow-listed is an invalid one (401). The comparison runs
// constant-time per candidate so membership cannot be probed byte by byte.
func (s *SDK) checkAPIKey(r *http.Request) (string, *AuthError) {
	key := r.Header.Get(HeaderAPIKey)
	if key == "" {
		return "", missingCredential("API-KEY header absent")
	}

	matched := false
	for _, allowed := range s.apiKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(allowed)) == 1 {
			matched = true
		}
	}
	if !matched {
		return "", invalidCredential("API key not recognized")
	}

	return key, nil
}
