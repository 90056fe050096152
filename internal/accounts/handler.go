package accounts

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/wariline/wariline/internal/platform/httpx"
)

// Handler exposes the account lifecycle over JSON.
type Handler struct {
	service   *Service
	logger    *slog.Logger
	validator *validator.Validate
}

// NewHandler wires the HTTP handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service:   service,
		logger:    logger,
		validator: validator.New(),
	}
}

// MountRoutes attaches account routes to the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.open)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Post("/{id}/block", h.block)
	r.Post("/{id}/unblock", h.unblock)
	r.Delete("/{id}", h.close)
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	var form openAccountForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}

	balance := decimal.Zero
	if form.OpeningBalance != "" {
		parsed, err := decimal.NewFromString(form.OpeningBalance)
		if err != nil || parsed.IsNegative() {
			httpx.RespondError(w, fmt.Errorf("%w: solde_initial must be a non-negative amount", httpx.ErrValidation))
			return
		}
		balance = parsed
	}

	acc, err := h.service.Open(r.Context(), OpenAccountRequest{
		OwnerID:        form.OwnerID,
		HolderName:     form.Holder,
		Type:           AccountType(form.Type),
		OpeningBalance: balance,
		Currency:       form.Currency,
	})
	if err != nil {
		h.logger.Error("open account", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, acc)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	var req ListAccountsRequest
	if raw := r.URL.Query().Get("statut"); raw != "" {
		status := AccountStatus(raw)
		req.Status = &status
	}
	if raw := r.URL.Query().Get("type"); raw != "" {
		accType := AccountType(raw)
		req.Type = &accType
	}
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		owner := raw
		req.OwnerID = &owner
	}

	accounts, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("list accounts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"comptes": accounts})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "id")
	var (
		acc *Account
		err error
	)
	// Lookups accept the human-facing account number as well as the id.
	if strings.HasPrefix(ref, numberPrefix+"-") {
		acc, err = h.service.GetByNumber(r.Context(), ref)
	} else {
		acc, err = h.service.Get(r.Context(), ref)
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, acc)
}

func (h *Handler) block(w http.ResponseWriter, r *http.Request) {
	var form blockForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}

	req := BlockRequest{
		Reason:   form.Reason,
		Duration: form.Duration,
		Unit:     DurationUnit(form.Unit),
	}
	if form.ActivationAt != nil {
		req.ActivationAt = *form.ActivationAt
	}

	acc, err := h.service.RequestBlock(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.logger.Warn("request block", slog.String("account", chi.URLParam(r, "id")), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, acc)
}

func (h *Handler) unblock(w http.ResponseWriter, r *http.Request) {
	var form unblockForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}

	acc, err := h.service.RequestUnblock(r.Context(), chi.URLParam(r, "id"), form.Reason)
	if err != nil {
		h.logger.Warn("request unblock", slog.String("account", chi.URLParam(r, "id")), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, acc)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	acc, err := h.service.Close(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, acc)
}
