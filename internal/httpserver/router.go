package httpserver

import (
	"net/http"

	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/auth"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/httputil"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/marketdata"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/modegate"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/orders"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/traderr"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/wallet"

	"github.com/go-chi/chi/v5"
)

type RouterDeps struct {
	AuthHandler   *auth.Handler
	WalletHandler *wallet.Handler
	OrderHandler  *orders.Handler
	ModeHandler   *modegate.Handler
	AuthService   *auth.Service
	Book          *marketdata.Book
	Symbols       []string
	WSHandler     http.Handler
}

// authed adapts a userID-taking handler to the router, pulling the identity
// set by WithAuth.
func authed(fn func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserID(r)
		if !ok {
			httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
			return
		}
		fn(w, r, userID)
	}
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(SecurityHeaders)
	r.Use(RateLimit)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", d.AuthHandler.Register)
			r.Post("/login", d.AuthHandler.Login)
		})
		r.Get("/ws", d.WSHandler.ServeHTTP)
		r.Get("/market/quotes", func(w http.ResponseWriter, r *http.Request) {
			out := make([]marketdata.Quote, 0, len(d.Symbols))
			for _, symbol := range d.Symbols {
				q, err := d.Book.Quote(symbol)
				if err != nil {
					continue
				}
				out = append(out, q)
			}
			httputil.WriteJSON(w, http.StatusOK, out)
		})
		r.Get("/market/quotes/{symbol}", func(w http.ResponseWriter, r *http.Request) {
			q, err := d.Book.Quote(chi.URLParam(r, "symbol"))
			if err != nil {
				httputil.WriteError(w, traderr.HTTPStatus(err), err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, q)
		})

		r.Group(func(r chi.Router) {
			r.Use(WithAuth(d.AuthService))
			r.Get("/me", authed(d.AuthHandler.Me))

			r.Get("/wallet", authed(d.WalletHandler.Wallet))
			r.Get("/ledger", authed(d.WalletHandler.Ledger))
			r.Post("/faucet", authed(d.WalletHandler.Faucet))

			r.Post("/orders", authed(d.OrderHandler.Place))
			r.Get("/orders", authed(d.OrderHandler.Open))
			r.Get("/orders/history", authed(d.OrderHandler.History))
			r.Delete("/orders/{id}", authed(func(w http.ResponseWriter, r *http.Request, userID string) {
				d.OrderHandler.Cancel(w, r, userID, chi.URLParam(r, "id"))
			}))

			r.Route("/mode", func(r chi.Router) {
				r.Get("/", authed(d.ModeHandler.Current))
				r.Get("/token", authed(d.ModeHandler.Token))
				r.Post("/", authed(d.ModeHandler.Switch))
				r.Get("/audit", authed(d.ModeHandler.Audit))
			})
		})
	})
	return r
}
