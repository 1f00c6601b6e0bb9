package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"outletpos/backend/internal/closing"
	"outletpos/backend/internal/domain"
)

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleClockIn(w http.ResponseWriter, r *http.Request) {
	var req domain.ClockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	att, err := a.service.ClockIn(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"attendance": att})
}

func (a *API) handleClockOut(w http.ResponseWriter, r *http.Request) {
	var req domain.ClockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	att, err := a.service.ClockOut(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attendance": att})
}

func (a *API) handleCurrentClosing(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.CurrentClosing(r.Context(), r.URL.Query().Get("outlet_id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleSubmitClosing always returns the flow state next to any error so the
// client knows whether to ask for notes, an approver or a confirmation.
func (a *API) handleSubmitClosing(w http.ResponseWriter, r *http.Request) {
	var req domain.ClosingSubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := a.service.SubmitClosing(r.Context(), req)
	if err != nil {
		if result.State == "" {
			writeError(w, statusFor(err), err)
			return
		}
		status := statusFor(err)
		writeJSON(w, status, map[string]any{
			"error":  errorMessage(status, err),
			"result": result,
		})
		return
	}

	status := http.StatusOK
	if result.State == closing.StateCommitted {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"result": result})
}

func (a *API) handleClosingReport(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.ClosingReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": report})
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	tx, err := a.service.Checkout(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"transaction": tx})
}

func (a *API) handleVoidTransaction(w http.ResponseWriter, r *http.Request) {
	var req domain.VoidTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	tx, err := a.service.VoidTransaction(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transaction": tx})
}

func (a *API) handleExpense(w http.ResponseWriter, r *http.Request) {
	var req domain.ExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	expense, err := a.service.RecordExpense(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"expense": expense})
}

func (a *API) handleProduction(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	record, err := a.service.RecordProduction(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"production": record})
}

func (a *API) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req domain.PurchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	purchase, err := a.service.RecordPurchase(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"purchase": purchase})
}

func (a *API) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req domain.TransferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	transfer, err := a.service.CreateTransfer(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"transfer": transfer})
}

func (a *API) handleRespondTransfer(w http.ResponseWriter, r *http.Request) {
	var req domain.TransferRespondRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	transfer, err := a.service.RespondTransfer(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transfer": transfer})
}

func (a *API) handleInventory(w http.ResponseWriter, r *http.Request) {
	items, err := a.service.ListInventory(r.Context(), r.URL.Query().Get("outlet_id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := parsePositiveLimit(query.Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), query.Get("outlet_id"), query.Get("date"), limit)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}
