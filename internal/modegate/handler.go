package modegate

import (
	"net/http"
	"strings"

	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/httputil"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/traderr"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/types"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Current(w http.ResponseWriter, r *http.Request, userID string) {
	st, err := h.svc.Current(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, traderr.HTTPStatus(err), err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

func (h *Handler) Token(w http.ResponseWriter, r *http.Request, userID string) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"token": h.svc.IssueToken(userID)})
}

type switchRequest struct {
	Target       string `json:"target"`
	Confirmation string `json:"confirmation"`
	Token        string `json:"token"`
}

func (h *Handler) Switch(w http.ResponseWriter, r *http.Request, userID string) {
	var req switchRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err)
		return
	}
	st, err := h.svc.Switch(r.Context(), SwitchRequest{
		UserID:       userID,
		Actor:        userID,
		Origin:       r.RemoteAddr,
		Target:       types.TradingMode(strings.ToLower(req.Target)),
		Confirmation: req.Confirmation,
		Token:        req.Token,
	})
	if err != nil {
		httputil.WriteError(w, traderr.HTTPStatus(err), err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

func (h *Handler) Audit(w http.ResponseWriter, r *http.Request, userID string) {
	out, err := h.svc.AuditTrail(r.Context(), userID, 0)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}
