package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

// TokenVerifier checks a raw bearer token. *oidc.IDTokenVerifier implements it.
type TokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

// SetupVerifier performs OIDC discovery against issuer and returns a verifier
// for tokens issued to clientID.
func SetupVerifier(ctx context.Context, issuer, clientID string) (*oidc.IDTokenVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, err
	}
	return provider.Verifier(&oidc.Config{ClientID: clientID}), nil
}

// RequireBearer wraps an http.Handler and returns 401 unless the request
// carries a valid bearer token.
func RequireBearer(verifier TokenVerifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
			return
		}

		token, err := verifier.Verify(r.Context(), raw)
		if err != nil {
			slog.Debug("rejected bearer token", "error", err)
			http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
			return
		}

		slog.Debug("authenticated request", "subject", token.Subject, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

// RequireBearerFunc wraps an http.HandlerFunc.
func RequireBearerFunc(verifier TokenVerifier, next http.HandlerFunc) http.Handler {
	return RequireBearer(verifier, http.HandlerFunc(next))
}
