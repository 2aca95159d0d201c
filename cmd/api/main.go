package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/auth"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/config"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/db"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/httpserver"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/marketdata"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/modegate"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/orders"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/simulator"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/wallet"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	feeRate, err := decimal.NewFromString(cfg.SimFeeRate)
	if err != nil {
		log.Fatal(err)
	}
	slippageBps, err := decimal.NewFromString(cfg.SimSlippageBps)
	if err != nil {
		log.Fatal(err)
	}
	maxFillQty, err := decimal.NewFromString(cfg.SimMaxFillQty)
	if err != nil {
		log.Fatal(err)
	}
	faucetMax, err := decimal.NewFromString(cfg.FaucetMax)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatal(err)
	}

	bus := marketdata.NewBus()
	book := marketdata.NewBook(cfg.QuoteMaxAge)
	feed := marketdata.NewFeed(book, bus, cfg.SimSymbols, cfg.SimTickInterval, logger)

	walletSvc := wallet.NewService(pool, logger)
	orderStore := orders.NewStore()
	orderSvc := orders.NewService(pool, orderStore, walletSvc, book, feeRate, slippageBps, cfg.LockExpiryHorizon, logger)
	engine := simulator.NewEngine(pool, orderStore, orderSvc, walletSvc, book, bus, simulator.Params{
		FeeRate:     feeRate,
		SlippageBps: slippageBps,
		MaxFillQty:  maxFillQty,
	}, cfg.SimSymbols, cfg.SimTickInterval, logger)

	authSvc := auth.NewService(pool, cfg.JWTIssuer, []byte(cfg.JWTSecret), cfg.JWTTTL)
	tokens := modegate.NewTokenIssuer(cfg.ModeSwitchSecret, cfg.ModeTokenTTL)
	modeSvc := modegate.NewService(pool, tokens, cfg.ModeSwitchLimit, cfg.ModeSwitchWindow, logger)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		AuthHandler:   auth.NewHandler(authSvc),
		WalletHandler: wallet.NewHandler(walletSvc, cfg.FaucetEnabled, faucetMax),
		OrderHandler:  orders.NewHandler(orderSvc),
		ModeHandler:   modegate.NewHandler(modeSvc),
		AuthService:   authSvc,
		Book:          book,
		Symbols:       cfg.SimSymbols,
		WSHandler:     httpserver.NewWSHandler(bus, authSvc, cfg.WebSocketOrigin),
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go feed.Run(ctx)
	go engine.Run(ctx)
	go orderSvc.RunExpiry(ctx, cfg.ExpirySweep)

	logger.WithField("addr", cfg.HTTPAddr).Info("server listening")
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
