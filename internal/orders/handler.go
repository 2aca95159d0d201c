package orders

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/httputil"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/traderr"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/types"

	"github.com/shopspring/decimal"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type placeOrderRequest struct {
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	Kind      string `json:"kind"`
	Price     string `json:"price,omitempty"`
	StopPrice string `json:"stop_price,omitempty"`
	Qty       string `json:"qty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

func parseOptionalDecimal(raw string) (*decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (h *Handler) Place(w http.ResponseWriter, r *http.Request, userID string) {
	var req placeOrderRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err)
		return
	}
	qty, err := decimal.NewFromString(req.Qty)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid qty"})
		return
	}
	price, err := parseOptionalDecimal(req.Price)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid price"})
		return
	}
	stop, err := parseOptionalDecimal(req.StopPrice)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid stop_price"})
		return
	}
	var expiresAt *time.Time
	if strings.TrimSpace(req.ExpiresAt) != "" {
		t, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid expires_at"})
			return
		}
		expiresAt = &t
	}
	res, err := h.svc.Submit(r.Context(), SubmitRequest{
		UserID:    userID,
		Symbol:    req.Symbol,
		Side:      types.OrderSide(strings.ToLower(req.Side)),
		Kind:      types.OrderKind(strings.ToLower(req.Kind)),
		Price:     price,
		StopPrice: stop,
		Qty:       qty,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		httputil.WriteError(w, traderr.HTTPStatus(err), err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request, userID, orderID string) {
	if err := h.svc.Cancel(r.Context(), userID, orderID); err != nil {
		httputil.WriteError(w, traderr.HTTPStatus(err), err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "canceled"})
}

func (h *Handler) Open(w http.ResponseWriter, r *http.Request, userID string) {
	out, err := h.svc.ListOpen(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request, userID string) {
	q := r.URL.Query()
	var before *time.Time
	if raw := q.Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid before timestamp"})
			return
		}
		before = &t
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}
	out, err := h.svc.History(r.Context(), userID, before, limit)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}
