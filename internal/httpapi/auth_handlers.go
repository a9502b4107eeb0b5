package httpapi

import (
	"errors"
	"net/http"
	"time"

	"civreg.org/internal/audit"
	"civreg.org/internal/auth"
	"civreg.org/internal/obs"
	"civreg.org/internal/users"
)

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	session, err := a.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			_ = audit.LogEvent(r.Context(), audit.EventLoginFailed, map[string]any{
				"username":  req.Username,
				"remote_ip": clientIP(r),
			})
		}
		handleError(w, r, err)
		return
	}
	obs.TokenIssued("login")

	ctx := auth.ContextWithIdentity(r.Context(), session.Identity)
	_ = audit.LogEvent(ctx, audit.EventLogin, map[string]any{
		"expires_at": session.ExpiresAt.Format(time.RFC3339),
	})
	respondOK(w, http.StatusOK, "login successful", viewSession(session))
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	user, err := a.users.Register(r.Context(), users.CreateInput{
		Username:   req.Username,
		Password:   req.Password,
		FullName:   req.FullName,
		ProvinceID: req.ProvinceID,
		DistrictID: req.DistrictID,
		WardID:     req.WardID,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), audit.EventRegister, map[string]any{
		"user_id":  user.ID,
		"username": user.Username,
	})
	respondOK(w, http.StatusCreated, "registration successful", viewUser(user))
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token, err := extractRefreshToken(r.Header.Get(authHeader))
	if err != nil {
		w.Header().Set("WWW-Authenticate", `Bearer realm="civreg"`)
		respondError(w, r, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}

	session, err := a.tokens.Refresh(r.Context(), token)
	if err != nil {
		handleError(w, r, err)
		return
	}
	obs.TokenIssued("refresh")

	ctx := auth.ContextWithIdentity(r.Context(), session.Identity)
	_ = audit.LogEvent(ctx, audit.EventRefresh, map[string]any{
		"expires_at": session.ExpiresAt.Format(time.RFC3339),
	})
	respondOK(w, http.StatusOK, "token refreshed", viewSession(session))
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	respondOK(w, http.StatusOK, "token is valid", viewIdentity(actor(r)))
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, _ := auth.TokenFromContext(r.Context())
	if err := a.tokens.Revoke(r.Context(), token); err != nil {
		handleError(w, r, err)
		return
	}

	revoked := !a.tokens.Stateless()
	_ = audit.LogEvent(r.Context(), audit.EventLogout, map[string]any{
		"revoked": revoked,
	})
	respondOK(w, http.StatusOK, "logged out", map[string]any{
		"revoked": revoked,
	})
}
