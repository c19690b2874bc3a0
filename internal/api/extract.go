package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/supplier-verify/internal/model"
	"github.com/sells-group/supplier-verify/internal/sat"
)

const maxExtractBody = 64 << 10

// extractRequest accepts both modes. urlCSF is an older name for the
// registration URL.
type extractRequest struct {
	URL             string `json:"url"`
	URLOpinion      string `json:"urlOpinion"`
	URLRegistration string `json:"urlRegistration"`
	URLCSF          string `json:"urlCSF"`
}

func (r extractRequest) pair() bool {
	return r.URLOpinion != "" || r.URLRegistration != "" || r.URLCSF != ""
}

// handleExtract serves POST /sat/extract.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxExtractBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, sat.Response{Error: "invalid request body"})
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	req.URLOpinion = strings.TrimSpace(req.URLOpinion)
	req.URLRegistration = strings.TrimSpace(req.URLRegistration)
	if req.URLRegistration == "" {
		req.URLRegistration = strings.TrimSpace(req.URLCSF)
	}

	if req.pair() {
		s.extractPair(w, r, req)
		return
	}
	if req.URL == "" {
		writeJSON(w, http.StatusBadRequest, sat.Response{Error: "url is required"})
		return
	}

	ext, err := s.verifier.Fetch(r.Context(), req.URL)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sat.Response{OK: true, URL: ext.URL, Fields: &ext.Fields})
}

func (s *Server) extractPair(w http.ResponseWriter, r *http.Request, req extractRequest) {
	if req.URLOpinion == "" || req.URLRegistration == "" {
		writeJSON(w, http.StatusBadRequest, sat.Response{Error: "urlOpinion and urlRegistration are required"})
		return
	}

	pair, err := s.verifier.FetchPair(r.Context(), req.URLOpinion, req.URLRegistration)
	if err != nil {
		if e, ok := model.AsError(err); ok && e.Kind == model.KindRFCMismatch {
			match := false
			writeJSON(w, http.StatusOK, sat.Response{OK: true, RFCMatch: &match, Error: e.Message, Details: e.Details})
			return
		}
		writeFailure(w, err)
		return
	}
	match := pair.RFCMatch
	writeJSON(w, http.StatusOK, sat.Response{
		OK:           true,
		RFCMatch:     &match,
		RFC:          pair.RFC,
		Opinion:      pair.Opinion,
		Registration: pair.Registration,
	})
}

// writeFailure renders a verification failure as {ok:false, reason, error}.
func writeFailure(w http.ResponseWriter, err error) {
	e, ok := model.AsError(err)
	if !ok {
		zap.L().Error("api: extract failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, sat.Response{Error: "internal error"})
		return
	}
	writeJSON(w, failureStatus(e.Kind), sat.Response{Reason: e.Kind, Error: e.Message, Details: e.Details})
}

func failureStatus(kind model.ErrorKind) int {
	switch kind {
	case model.KindURLNotOfficial:
		return http.StatusBadRequest
	case model.KindFetchFailed:
		return http.StatusBadGateway
	case model.KindParseFailed, model.KindQRNotFound:
		return http.StatusUnprocessableEntity
	default:
		if kind.Rejection() {
			return http.StatusUnprocessableEntity
		}
		return http.StatusInternalServerError
	}
}
