package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/Harshitk-cp/fastinf/internal/domain"
	"github.com/Harshitk-cp/fastinf/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxRequestBytes = 8 << 20

// Inferer is the part of service.InferenceService the handlers use.
type Inferer interface {
	Run(ctx context.Context, req service.RunRequest) (*domain.Run, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	List(ctx context.Context, limit int) ([]domain.Run, error)
}

type InferenceHandler struct {
	svc    Inferer
	logger *zap.Logger
}

func NewInferenceHandler(svc Inferer, logger *zap.Logger) *InferenceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InferenceHandler{svc: svc, logger: logger}
}

type inferRequest struct {
	service.RunRequest
	// Persist defaults to true over HTTP.
	Persist *bool `json:"persist"`
}

func (h *InferenceHandler) Infer(w http.ResponseWriter, r *http.Request) {
	var req inferRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Model.Cards) == 0 {
		writeError(w, http.StatusBadRequest, "model.cards is required")
		return
	}
	req.RunRequest.Persist = req.Persist == nil || *req.Persist

	run, err := h.svc.Run(r.Context(), req.RunRequest)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("inference failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "inference failed")
		return
	}

	code := http.StatusOK
	if req.RunRequest.Persist {
		code = http.StatusCreated
	}
	writeJSON(w, code, run)
}

func (h *InferenceHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	run, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	writeJSON(w, http.StatusOK, run)
}

func (h *InferenceHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	runs, err := h.svc.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []domain.Run{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}
