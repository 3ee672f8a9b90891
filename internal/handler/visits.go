package handler

import (
	"net/http"
	"time"

	"github.com/venuepass/loyalty/internal/auth"
	"github.com/venuepass/loyalty/internal/domain"
	"github.com/venuepass/loyalty/internal/visits"
)

// VisitHandler exposes visit registration and confirmation.
type VisitHandler struct {
	registry *visits.Registry
}

// NewVisitHandler creates a VisitHandler.
func NewVisitHandler(registry *visits.Registry) *VisitHandler {
	return &VisitHandler{registry: registry}
}

type registerVisitRequest struct {
	AccountID string                `json:"account_id"`
	PartnerID string                `json:"partner_id"`
	Booking   domain.BookingPayload `json:"booking"`
}

// Register handles POST /visits (booking intake).
func (h *VisitHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerVisitRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}

	rec, err := h.registry.RegisterVisit(r.Context(), req.AccountID, req.PartnerID, req.Booking)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, rec)
}

type confirmVisitRequest struct {
	AccountID   string     `json:"account_id"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

// Confirm handles POST /visits/confirm (partner visit-confirmation action).
// The partner identity comes from the authenticated token, never the body.
func (h *VisitHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	partnerID := auth.PartnerFromContext(r.Context())
	if partnerID == "" {
		RespondError(w, domain.ErrUnauthorized("partner identity missing"))
		return
	}

	var req confirmVisitRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	confirmedAt := time.Now().UTC()
	if req.ConfirmedAt != nil {
		confirmedAt = *req.ConfirmedAt
	}

	rec, err := h.registry.ConfirmVisit(r.Context(), req.AccountID, partnerID, confirmedAt)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, rec)
}
