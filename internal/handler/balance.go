package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/venuepass/loyalty/internal/domain"
	"github.com/venuepass/loyalty/internal/ledger"
)

// BalanceHandler exposes the balance reconciler.
type BalanceHandler struct {
	balances *ledger.Reconciler
}

// NewBalanceHandler creates a BalanceHandler.
func NewBalanceHandler(balances *ledger.Reconciler) *BalanceHandler {
	return &BalanceHandler{balances: balances}
}

// Get handles GET /accounts/{accountID}/balance.
func (h *BalanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if err := domain.ValidateAccountID(accountID); err != nil {
		RespondError(w, err)
		return
	}

	balance, err := h.balances.GetBalance(r.Context(), accountID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, balance)
}
