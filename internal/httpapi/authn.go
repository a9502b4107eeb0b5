package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"civreg.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="civreg"`)
			respondError(w, r, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}

		identity, err := a.tokens.Authenticate(r.Context(), token)
		if err != nil {
			handleError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), identity, token)))
	})
}

// actor returns the identity attached by withAuth.
func actor(r *http.Request) auth.Identity {
	id, _ := auth.IdentityFromContext(r.Context())
	return id
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

// extractRefreshToken accepts "Bearer x" as well as a bare "x".
func extractRefreshToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" || strings.EqualFold(header, strings.TrimSpace(bearer)) {
		return "", errors.New("missing token")
	}
	if strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return extractBearerToken(header)
	}
	if strings.ContainsAny(header, " \t") {
		return "", errors.New("invalid authorization scheme")
	}
	return header, nil
}
