package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"civreg.org/internal/audit"
	"civreg.org/internal/auth"
	"civreg.org/internal/requests"
)

func (a *API) handleListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params, err := parseListParams(q)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid query", err.Error())
		return
	}
	query := requests.Query{
		ProvinceID: params.ProvinceID,
		DistrictID: params.DistrictID,
		WardID:     params.WardID,
		Page:       params.page(),
	}
	if raw := q.Get("status"); raw != "" {
		status, err := requests.ParseStatus(raw)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "invalid query", err.Error())
			return
		}
		query.Status = &status
	}
	page, err := a.requests.List(r.Context(), actor(r), query)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "ok", pageView[*requests.Request]{Items: page.Items, Pagination: page.Pagination})
}

func (a *API) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := a.requests.Get(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "ok", req)
}

func (a *API) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	var body submitRequestRequest
	if err := decodeAndValidate(w, r, &body); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	req, err := a.requests.Submit(r.Context(), actor(r), requests.SubmitInput{
		Type:    *body.RequestType,
		Content: body.Content,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventRequestSubmit, map[string]any{
		"citizen_request_id": req.ID,
		"request_type":       req.Type,
	})
	respondOK(w, http.StatusCreated, "request submitted", req)
}

type decideFunc func(ctx context.Context, actor auth.Identity, id string) (*requests.Request, error)

func (a *API) handleApproveRequest(w http.ResponseWriter, r *http.Request) {
	a.decideRequest(w, r, a.requests.Approve, audit.EventRequestApprove, "request approved")
}

func (a *API) handleRejectRequest(w http.ResponseWriter, r *http.Request) {
	a.decideRequest(w, r, a.requests.Reject, audit.EventRequestReject, "request rejected")
}

func (a *API) decideRequest(w http.ResponseWriter, r *http.Request, decide decideFunc, event, message string) {
	req, err := decide(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), event, map[string]any{
		"citizen_request_id": req.ID,
		"citizen_id":         req.CitizenID,
		"status":             req.Status.String(),
	})
	respondOK(w, http.StatusOK, message, req)
}
