package payment

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/igabaycare/platform/internal/shared/errors"
	"github.com/igabaycare/platform/internal/shared/types"
)

// Handler exposes payment settlement over HTTP.
type Handler struct {
	service *Service
}

// NewHandler creates a payment HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the payment routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/payments", h.InitiatePayment)
	r.Post("/payments/{transactionID}/confirm", h.ConfirmPayment)
	r.Route("/appointments/{appointmentID}", func(r chi.Router) {
		r.Get("/transactions", h.ListTransactions)
		r.Post("/refund", h.ProcessRefund)
	})

	return r
}

// InitiatePayment starts a charge for an appointment.
func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req InitiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	tx, err := h.service.InitiatePayment(r.Context(), req)
	if err != nil {
		// A rejected charge still produced a failed transaction record;
		// surface both so the client can retry.
		if tx != nil {
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"transaction": tx,
				"error":       "charge was rejected by the provider",
			})
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, tx)
}

// ConfirmPayment applies a provider outcome to a transaction. Both
// provider webhooks and the client-side payment callback land here.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	transactionID, err := types.ParseID(chi.URLParam(r, "transactionID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid transaction ID"))
		return
	}

	var req ConfirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	req.TransactionID = transactionID

	tx, a, err := h.service.ConfirmPayment(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transaction": tx,
		"appointment": a,
	})
}

// ProcessRefund refunds the appointment's completed charge and cancels
// the appointment.
func (h *Handler) ProcessRefund(w http.ResponseWriter, r *http.Request) {
	appointmentID, err := types.ParseID(chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid appointment ID"))
		return
	}

	var req RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	req.AppointmentID = appointmentID

	refund, err := h.service.ProcessRefund(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, refund)
}

// ListTransactions returns all transactions for an appointment.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	appointmentID, err := types.ParseID(chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid appointment ID"))
		return
	}

	txs, err := h.service.ListTransactions(r.Context(), appointmentID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"appointment_id": appointmentID,
		"transactions":   txs,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
