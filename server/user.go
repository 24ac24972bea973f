package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type userIDKeyType struct{}

var userIDKey = userIDKeyType{}

// UserIDFromContext extracts the verified user identity (the JWT subject).
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok
}

// UserVerifier is the terminal user-identity gate: an HS256 bearer JWT
// check that runs only after every core authentication gate has passed.
type UserVerifier struct {
	secret   []byte
	issuer   string
	audience string
	logger   *log.Logger
}

func NewUserVerifier(cfg UserConfig, logger *log.Logger) (*UserVerifier, error) {
	if cfg.Secret == "" {
		return nil, errors.New("user JWT secret is required")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &UserVerifier{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		logger:   logger,
	}, nil
}

// Middleware enforces a valid bearer token with a subject claim and puts
// the subject into the request context.
func (v *UserVerifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractBearer(r.Header.Get("Authorization"))
		if tokenString == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		subject, err := v.verify(tokenString)
		if err != nil {
			v.logger.Printf("server: user token rejected: %v", err)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, subject)))
	})
}

func (v *UserVerifier) verify(tokenString string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithLeeway(2 * time.Minute),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.NewParser(opts...).Parse(tokenString, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("token invalid")
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", errors.New("subject claim missing")
	}
	return subject, nil
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
