package receipts

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tendant/bewirtungsbeleg/internal/domain"
	"github.com/tendant/bewirtungsbeleg/internal/http/features/common"
	"github.com/tendant/bewirtungsbeleg/internal/httputil"
	"github.com/tendant/bewirtungsbeleg/internal/receipt"
)

const (
	msgUnknownClassification = "Unbekannter Belegtyp"
	msgTooManyExtractions    = "Zu viele Belege"
)

// MaxExtractions bounds the number of receipts merged per request.
const MaxExtractions = 20

// Handler reconciles OCR extractions into one expense form.
type Handler struct {
	logger *slog.Logger
}

// NewHandler creates a new reconcile handler.
func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{logger: logger}
}

// ExtractionInput is one classified OCR result.
type ExtractionInput struct {
	Classification string             `json:"classification" validate:"required" msg:"Belegtyp ist erforderlich"`
	Data           receipt.Extraction `json:"data"`
}

// ReconcileRequest carries the current form state and the extractions to merge.
type ReconcileRequest struct {
	Initial     receipt.FormData  `json:"initial"`
	Extractions []ExtractionInput `json:"extractions" validate:"required,min=1,dive" msg:"Mindestens ein Beleg ist erforderlich"`
}

// ReconcileResponse is the merged form and its financial validation.
type ReconcileResponse struct {
	Values     receipt.FormData   `json:"values"`
	Validation receipt.Validation `json:"validation"`
}

// Reconcile merges the extractions in request order.
// POST /api/receipts/reconcile
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		common.WriteDecodeError(w, err)
		return
	}
	if len(req.Extractions) > MaxExtractions {
		httputil.Error(w, http.StatusBadRequest, msgTooManyExtractions)
		return
	}

	values, validation, err := Reconcile(req, h.logger)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidClassification) {
			httputil.Error(w, http.StatusBadRequest, msgUnknownClassification)
			return
		}
		h.logger.Error("reconcile failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, httputil.MsgInternal)
		return
	}

	httputil.JSON(w, http.StatusOK, ReconcileResponse{Values: values, Validation: validation})
}

// Reconcile runs an accumulator over req. All classifications are checked
// before anything is merged.
func Reconcile(req ReconcileRequest, logger *slog.Logger) (receipt.FormData, receipt.Validation, error) {
	kinds := make([]receipt.SourceKind, len(req.Extractions))
	for i, in := range req.Extractions {
		kind, err := receipt.ParseSourceKind(in.Classification)
		if err != nil {
			return receipt.FormData{}, receipt.Validation{}, err
		}
		kinds[i] = kind
	}

	acc := receipt.NewAccumulator(req.Initial, receipt.WithLogger(logger))
	for i, in := range req.Extractions {
		if err := acc.Merge(in.Data, kinds[i]); err != nil {
			return receipt.FormData{}, receipt.Validation{}, err
		}
	}
	return acc.Snapshot(), acc.ValidateFinancialFields(), nil
}

// RegisterRoutes registers the receipt routes.
func (h *Handler) RegisterRoutes(r chi.Router, limit func(http.Handler) http.Handler) {
	r.With(limit).Post("/api/receipts/reconcile", h.Reconcile)
}
