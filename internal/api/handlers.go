package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/spherical/pdf-flattener/internal/domain"
	"github.com/spherical/pdf-flattener/internal/flatten"
	"github.com/spherical/pdf-flattener/internal/observability"
)

const (
	formFieldPDF = "pdf"

	// multipartOverhead covers boundaries and form fields on top of the file itself.
	multipartOverhead = 1 << 20
	multipartMemory   = 32 << 20
)

// FlattenHandler handles flatten requests.
type FlattenHandler struct {
	logger    *observability.Logger
	flattener Flattener
	runs      *semaphore.Weighted
	maxBytes  int64
}

// NewFlattenHandler creates a new flatten handler.
func NewFlattenHandler(logger *observability.Logger, flattener Flattener, runs *semaphore.Weighted, maxBytes int64) *FlattenHandler {
	return &FlattenHandler{
		logger:    logger,
		flattener: flattener,
		runs:      runs,
		maxBytes:  maxBytes,
	}
}

// ErrorDTO is the JSON body of every failed request.
type ErrorDTO struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	RunID   string `json:"run_id,omitempty"`
}

// Flatten handles POST /api/v1/flatten.
func (h *FlattenHandler) Flatten(w http.ResponseWriter, r *http.Request) {
	runID := uuid.NewString()

	if !h.runs.TryAcquire(1) {
		h.writeError(w, http.StatusServiceUnavailable, runID, "busy",
			"Too many documents are being flattened. Try again shortly.")
		return
	}
	defer h.runs.Release(1)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeDomainError(w, runID, domain.InputRejected("upload exceeds the size limit", err))
			return
		}
		h.writeDomainError(w, runID, domain.InputRejected("invalid multipart form", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(formFieldPDF)
	if err != nil {
		h.writeDomainError(w, runID, domain.InputRejected(fmt.Sprintf("missing %q file field", formFieldPDF), err))
		return
	}
	defer file.Close()

	// One extra byte lets the validator see an over-limit upload.
	data, err := io.ReadAll(io.LimitReader(file, h.maxBytes+1))
	if err != nil {
		h.writeDomainError(w, runID, domain.InputRejected("read upload", err))
		return
	}

	opts, err := h.rasterOptions(r)
	if err != nil {
		h.writeDomainError(w, runID, err)
		return
	}

	doc, err := h.flattener.Flatten(r.Context(), header.Filename, data, flatten.Options{
		Raster: opts,
		RunID:  runID,
	})
	if err != nil {
		h.writeDomainError(w, runID, err)
		return
	}

	w.Header().Set("Content-Type", doc.MIMEType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Data)))
	w.Header().Set("X-Run-ID", runID)
	w.Header().Set("X-Page-Count", strconv.Itoa(doc.PageCount))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc.Data); err != nil {
		h.logger.Warn().Str("run_id", runID).Err(err).Msg("Failed to write response")
	}
}

// rasterOptions reads dpi and quality form values over the configured defaults.
func (h *FlattenHandler) rasterOptions(r *http.Request) (domain.RasterOptions, error) {
	opts := h.flattener.DefaultOptions()

	if v := r.FormValue("dpi"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, domain.InputRejected("dpi must be an integer", err)
		}
		opts.DPI = n
	}
	if v := r.FormValue("quality"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, domain.InputRejected("quality must be an integer", err)
		}
		opts.Quality = n
	}
	return opts, nil
}

// statusFor maps a failure category to an HTTP status.
func statusFor(t domain.ErrorType) int {
	switch t {
	case domain.ErrorTypeInputRejected:
		return http.StatusBadRequest
	case domain.ErrorTypeMetadataUnavailable, domain.ErrorTypePageRender:
		return http.StatusUnprocessableEntity
	case domain.ErrorTypeToolchainMissing:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError sends the category and hint. Causal detail is logged, never returned.
func (h *FlattenHandler) writeDomainError(w http.ResponseWriter, runID string, err error) {
	t := domain.TypeOf(err)
	if t == "" {
		t = "internal"
	}
	h.logger.Warn().Str("run_id", runID).Str("category", string(t)).Err(err).Msg("Flatten request failed")
	h.writeError(w, statusFor(t), runID, string(t), domain.Hint(t))
}

func (h *FlattenHandler) writeError(w http.ResponseWriter, status int, runID, category, message string) {
	writeJSON(w, status, ErrorDTO{Error: category, Message: message, RunID: runID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
