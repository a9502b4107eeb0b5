package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"civreg.org/internal/audit"
	"civreg.org/internal/registry"
)

func (a *API) handleListHouseholds(w http.ResponseWriter, r *http.Request) {
	params, err := parseListParams(r.URL.Query())
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid query", err.Error())
		return
	}
	page, err := a.registry.ListHouseholds(r.Context(), actor(r), params.filter(), params.page())
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "ok", pageView[*registry.Household]{Items: page.Items, Pagination: page.Pagination})
}

func (a *API) handleGetHousehold(w http.ResponseWriter, r *http.Request) {
	h, err := a.registry.GetHousehold(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "ok", h)
}

func (a *API) handleCreateHousehold(w http.ResponseWriter, r *http.Request) {
	var req createHouseholdRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	h, err := a.registry.CreateHousehold(r.Context(), actor(r), registry.CreateInput{
		Code:       req.HouseholdCode,
		HeadName:   req.HeadName,
		Address:    req.Address,
		ProvinceID: req.ProvinceID,
		DistrictID: req.DistrictID,
		WardID:     req.WardID,
		HamletID:   req.HamletID,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventHouseholdCreate, map[string]any{
		"household_id":   h.ID,
		"household_code": h.Code,
	})
	respondOK(w, http.StatusCreated, "household created", h)
}

func (a *API) handleUpdateHousehold(w http.ResponseWriter, r *http.Request) {
	var req updateHouseholdRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	h, err := a.registry.UpdateHousehold(r.Context(), actor(r), chi.URLParam(r, "id"), registry.UpdateInput{
		Code:     req.HouseholdCode,
		HeadName: req.HeadName,
		Address:  req.Address,
		HamletID: req.HamletID,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventHouseholdUpdate, map[string]any{
		"household_id":   h.ID,
		"household_code": h.Code,
	})
	respondOK(w, http.StatusOK, "household updated", h)
}

func (a *API) handleStatistics(w http.ResponseWriter, r *http.Request) {
	params, err := parseListParams(r.URL.Query())
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid query", err.Error())
		return
	}
	stats, err := a.registry.Statistics(r.Context(), actor(r), params.filter())
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "ok", stats)
}
