package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"
)

type contextKey string

const requesterKey contextKey = "requester"

// AuthConfig holds the credentials accepted on protected routes. With both
// fields empty every request is let through.
type AuthConfig struct {
	APIKey           string
	JWTSecret        string
	DefaultRequester string // requestedBy when the caller is not identified
}

func (c AuthConfig) enabled() bool {
	return c.APIKey != "" || c.JWTSecret != ""
}

// RequesterFrom returns the caller identity stored by AuthMiddleware.
func RequesterFrom(ctx context.Context) string {
	v, _ := ctx.Value(requesterKey).(string)
	return v
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs every request after it has been served.
func LoggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			logger.Info("http request",
				"method", r.Method,
				"uri", r.RequestURI,
				"remote_addr", r.RemoteAddr,
				"status", rec.status,
				"duration", time.Since(start),
			)
		})
	}
}

// AuthMiddleware accepts an X-API-Key header or an HS256 bearer token. The
// token subject, or the X-User header for API key callers, is stored as the
// requester.
func AuthMiddleware(cfg AuthConfig) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requester := cfg.DefaultRequester

			switch {
			case !cfg.enabled():
				if user := r.Header.Get("X-User"); user != "" {
					requester = user
				}
			case r.Header.Get("X-API-Key") != "":
				if cfg.APIKey == "" || subtle.ConstantTimeCompare([]byte(r.Header.Get("X-API-Key")), []byte(cfg.APIKey)) != 1 {
					respondWithError(w, http.StatusUnauthorized, "Invalid API key")
					return
				}
				if user := r.Header.Get("X-User"); user != "" {
					requester = user
				}
			case strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "):
				if cfg.JWTSecret == "" {
					respondWithError(w, http.StatusUnauthorized, "Bearer tokens are not accepted")
					return
				}
				subject, err := verifyToken(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "), cfg.JWTSecret)
				if err != nil {
					respondWithError(w, http.StatusUnauthorized, "Invalid token")
					return
				}
				if subject != "" {
					requester = subject
				}
			default:
				respondWithError(w, http.StatusUnauthorized, "No credentials provided")
				return
			}

			ctx := context.WithValue(r.Context(), requesterKey, requester)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func verifyToken(raw, secret string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("token not valid")
	}
	return claims.Subject, nil
}
