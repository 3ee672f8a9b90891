package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/venuepass/loyalty/internal/auth"
	"github.com/venuepass/loyalty/internal/domain"
	"github.com/venuepass/loyalty/internal/voucher"
)

// VoucherHandler exposes the redemption state machine.
type VoucherHandler struct {
	machine *voucher.Machine
}

// NewVoucherHandler creates a VoucherHandler.
func NewVoucherHandler(machine *voucher.Machine) *VoucherHandler {
	return &VoucherHandler{machine: machine}
}

type issueVoucherRequest struct {
	AccountID string `json:"account_id"`
	RewardID  string `json:"reward_id"`
}

// Issue handles POST /vouchers (redemption request).
func (h *VoucherHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req issueVoucherRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}

	v, err := h.machine.Issue(r.Context(), req.AccountID, req.RewardID, time.Now().UTC())
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, v)
}

type applyVoucherRequest struct {
	BookingReference string `json:"booking_reference"`
}

// Apply handles POST /vouchers/{code}/apply (booking declares a voucher code).
func (h *VoucherHandler) Apply(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	var req applyVoucherRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}

	v, err := h.machine.Apply(r.Context(), code, req.BookingReference, time.Now().UTC())
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, v)
}

type processVoucherRequest struct {
	Decision domain.Decision `json:"decision"`
}

// Process handles POST /vouchers/{code}/process (partner redemption desk).
// The processing partner comes from the authenticated token.
func (h *VoucherHandler) Process(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	partnerID := auth.PartnerFromContext(r.Context())
	if partnerID == "" {
		RespondError(w, domain.ErrUnauthorized("partner identity missing"))
		return
	}

	var req processVoucherRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}

	v, err := h.machine.Process(r.Context(), code, partnerID, req.Decision, time.Now().UTC())
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, v)
}

// Get handles GET /vouchers/{code}.
func (h *VoucherHandler) Get(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	v, err := h.machine.Get(r.Context(), code, time.Now().UTC())
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, v)
}
