package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vishwadoshi-19/zense-staff/internal/app"
)

type contextKey string

const sessionClaimsContextKey contextKey = "sessionClaims"

// TokenVerifier parses bearer tokens.
type TokenVerifier interface {
	Parse(tokenString string) (*app.SessionClaims, error)
}

// RevocationChecker reports whether a token id was signed out.
type RevocationChecker interface {
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// AuthMiddleware validates the bearer token and injects its claims into the
// request context.
func AuthMiddleware(tokens TokenVerifier, revocations RevocationChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
			if authHeader == "" {
				respondWithError(w, http.StatusUnauthorized, "Authorization required")
				return
			}
			tokenString, ok := bearerToken(authHeader)
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "Invalid Authorization header format")
				return
			}

			claims, err := tokens.Parse(tokenString)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			revoked, err := revocations.IsTokenRevoked(r.Context(), claims.ID)
			if err != nil {
				logger.Error("revocation lookup failed", slog.Any("error", err))
				respondWithError(w, http.StatusServiceUnavailable, "Could not verify session")
				return
			}
			if revoked {
				respondWithError(w, http.StatusUnauthorized, "Session has been signed out")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSessionClaims(r.Context(), claims)))
		})
	}
}

// optionalClaims returns the caller's claims when the request carries a
// valid, unrevoked token, and nil otherwise.
func optionalClaims(r *http.Request, tokens TokenVerifier, revocations RevocationChecker) *app.SessionClaims {
	tokenString, ok := bearerToken(strings.TrimSpace(r.Header.Get("Authorization")))
	if !ok {
		return nil
	}
	claims, err := tokens.Parse(tokenString)
	if err != nil {
		return nil
	}
	if revoked, err := revocations.IsTokenRevoked(r.Context(), claims.ID); err != nil || revoked {
		return nil
	}
	return claims
}

// WithSessionClaims stores claims in ctx.
func WithSessionClaims(ctx context.Context, claims *app.SessionClaims) context.Context {
	return context.WithValue(ctx, sessionClaimsContextKey, claims)
}

// GetSessionClaims returns the authenticated token claims from request context.
func GetSessionClaims(ctx context.Context) (*app.SessionClaims, bool) {
	claims, ok := ctx.Value(sessionClaimsContextKey).(*app.SessionClaims)
	return claims, ok && claims != nil
}

// GetUserID returns the authenticated user ID from request context.
func GetUserID(ctx context.Context) (string, bool) {
	claims, ok := GetSessionClaims(ctx)
	if !ok {
		return "", false
	}
	return claims.Subject, true
}

func identityFromClaims(claims *app.SessionClaims) app.Identity {
	return app.Identity{UserID: claims.Subject, Phone: claims.Phone, SessionID: claims.ID}
}

func bearerToken(authHeader string) (string, bool) {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}

	return token, true
}
