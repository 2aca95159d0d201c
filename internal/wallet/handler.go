package wallet

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/httputil"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/traderr"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Handler struct {
	svc           *Service
	faucetEnabled bool
	faucetMax     decimal.Decimal
}

func NewHandler(svc *Service, faucetEnabled bool, faucetMax decimal.Decimal) *Handler {
	return &Handler{svc: svc, faucetEnabled: faucetEnabled, faucetMax: faucetMax}
}

type walletEntry struct {
	Balance   decimal.Decimal `json:"balance"`
	Locked    decimal.Decimal `json:"locked"`
	Available decimal.Decimal `json:"available"`
}

// Wallet returns the user's balances keyed by asset.
func (h *Handler) Wallet(w http.ResponseWriter, r *http.Request, userID string) {
	balances, err := h.svc.Balances(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	out := make(map[string]walletEntry, len(balances))
	for _, b := range balances {
		out[b.Asset] = walletEntry{Balance: b.Balance, Locked: b.LockedBalance, Available: b.Available()}
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// Ledger returns paginated ledger history with optional asset/type/before
// filters.
func (h *Handler) Ledger(w http.ResponseWriter, r *http.Request, userID string) {
	q := r.URL.Query()
	f := LedgerFilter{
		Asset:     strings.ToUpper(strings.TrimSpace(q.Get("asset"))),
		EntryType: types.LedgerEntryType(strings.TrimSpace(q.Get("type"))),
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid limit"})
			return
		}
		f.Limit = n
	}
	if raw := q.Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid before timestamp"})
			return
		}
		f.Before = &t
	}
	entries, err := h.svc.ListLedger(r.Context(), userID, f)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

type faucetRequest struct {
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
	Reference string `json:"reference"`
}

// Faucet seeds a paper wallet. The deposit is a regular ledger entry so the
// invariant sum(deltas) == balance - initial holds from the first row.
func (h *Handler) Faucet(w http.ResponseWriter, r *http.Request, userID string) {
	if !h.faucetEnabled {
		httputil.WriteJSON(w, http.StatusForbidden, httputil.ErrorResponse{Error: "faucet disabled"})
		return
	}
	var req faucetRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err)
		return
	}
	asset := strings.ToUpper(strings.TrimSpace(req.Asset))
	if asset == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "asset is required"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
		return
	}
	if h.faucetMax.GreaterThan(decimal.Zero) && amount.GreaterThan(h.faucetMax) {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "amount exceeds faucet limit"})
		return
	}
	ref := strings.TrimSpace(req.Reference)
	if ref == "" {
		ref = "faucet:" + uuid.NewString()
	}
	next, err := h.svc.Adjust(r.Context(), userID, asset, amount, types.LedgerEntryTypeFaucet, Ref{Ref: ref})
	if err != nil {
		httputil.WriteError(w, traderr.HTTPStatus(err), err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"asset": asset, "balance": next.String()})
}
