package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/supplier-verify/internal/flow"
	"github.com/sells-group/supplier-verify/internal/model"
)

// multipartOverhead is allowed on top of the file limit for boundaries and
// form fields.
const multipartOverhead = 64 << 10

func (s *Server) handleCreate(w http.ResponseWriter, _ *http.Request) {
	id := s.submissions.Create()
	snap, err := s.submissions.Get(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	snap, err := s.submissions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeSubmissionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRevalidate(w http.ResponseWriter, r *http.Request) {
	snap, err := s.submissions.Revalidate(chi.URLParam(r, "id"))
	if err != nil {
		writeSubmissionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

// handleUpload serves POST /submissions/{id}/documents/{type} with a
// multipart "file" part and optional "account" and "clabe" fields.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	doc, err := model.ParseDocumentType(chi.URLParam(r, "type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "", err.Error())
		return
	}

	limit := s.opts.MaxUploadBytes + multipartOverhead
	if r.ContentLength > limit {
		writeError(w, http.StatusRequestEntityTooLarge, "", flow.ErrFileTooLarge.Error())
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "", flow.ErrFileTooLarge.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "", "expected a multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "", "file is required")
		return
	}
	defer file.Close() //nolint:errcheck

	snap, err := s.submissions.Submit(r.Context(), flow.Upload{
		SubmissionID: chi.URLParam(r, "id"),
		Document:     doc,
		FileName:     hdr.Filename,
		Body:         file,
		Declared: flow.Declared{
			Account: r.FormValue("account"),
			CLABE:   r.FormValue("clabe"),
		},
	})
	if err != nil {
		writeSubmissionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

func writeSubmissionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, flow.ErrUnknownSubmission):
		writeError(w, http.StatusNotFound, "", "submission not found")
	case errors.Is(err, flow.ErrInvalidSubmission):
		writeError(w, http.StatusBadRequest, "", "invalid submission id")
	case errors.Is(err, flow.ErrEmptyFile):
		writeError(w, http.StatusBadRequest, "", "file is empty")
	case errors.Is(err, flow.ErrFileTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "", "file exceeds the upload size limit")
	case errors.Is(err, flow.ErrNotPDF):
		writeError(w, http.StatusUnsupportedMediaType, "", "file is not a PDF")
	case errors.Is(err, flow.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "", "service is shutting down")
	default:
		if e, ok := model.AsError(err); ok {
			writeError(w, http.StatusUnprocessableEntity, string(e.Kind), e.Message)
			return
		}
		zap.L().Error("api: submission request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "", "internal error")
	}
}
