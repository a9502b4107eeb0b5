package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"civreg.org/internal/audit"
	"civreg.org/internal/auth"
	"civreg.org/internal/users"
)

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params, err := parseListParams(q)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid query", err.Error())
		return
	}
	query := users.Query{
		ProvinceID: params.ProvinceID,
		DistrictID: params.DistrictID,
		WardID:     params.WardID,
		Page:       params.page(),
	}
	if raw := q.Get("role"); raw != "" {
		if query.Role, err = auth.ParseRole(raw); err != nil {
			respondError(w, r, http.StatusBadRequest, "invalid query", err.Error())
			return
		}
	}

	page, err := a.users.List(r.Context(), actor(r), query)
	if err != nil {
		handleError(w, r, err)
		return
	}
	items := make([]userView, 0, len(page.Items))
	for _, u := range page.Items {
		items = append(items, viewUser(u))
	}
	respondOK(w, http.StatusOK, "ok", pageView[userView]{Items: items, Pagination: page.Pagination})
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := a.users.Get(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "ok", viewUser(u))
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	u, err := a.users.Create(r.Context(), actor(r), users.CreateInput{
		Username:   req.Username,
		Password:   req.Password,
		FullName:   req.FullName,
		Role:       role,
		ProvinceID: req.ProvinceID,
		DistrictID: req.DistrictID,
		WardID:     req.WardID,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), audit.EventUserCreate, map[string]any{
		"user_id":  u.ID,
		"username": u.Username,
		"role":     u.Role.String(),
	})
	respondOK(w, http.StatusCreated, "user created", viewUser(u))
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	in := users.UpdateInput{
		FullName:   req.FullName,
		ProvinceID: req.ProvinceID,
		DistrictID: req.DistrictID,
		WardID:     req.WardID,
	}
	if req.Role != "" {
		role, err := auth.ParseRole(req.Role)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "invalid request", err.Error())
			return
		}
		in.Role = role
	}

	u, err := a.users.Update(r.Context(), actor(r), chi.URLParam(r, "id"), in)
	if err != nil {
		handleError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), audit.EventUserUpdate, map[string]any{
		"user_id": u.ID,
		"role":    u.Role.String(),
	})
	respondOK(w, http.StatusOK, "user updated", viewUser(u))
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.users.Delete(r.Context(), actor(r), id); err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventUserDelete, map[string]any{
		"user_id": id,
	})
	respondOK(w, http.StatusOK, "user deleted", nil)
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if err := a.users.ResetPassword(r.Context(), actor(r), id, req.Password); err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventPasswordReset, map[string]any{
		"user_id": id,
	})
	respondOK(w, http.StatusOK, "password reset", nil)
}
