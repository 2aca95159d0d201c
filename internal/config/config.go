package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	HTTPAddr        string        `envconfig:"HTTP_ADDR" required:"true"`
	DBDSN           string        `envconfig:"DB_DSN" required:"true"`
	JWTIssuer       string        `envconfig:"JWT_ISSUER" required:"true"`
	JWTSecret       string        `envconfig:"JWT_SECRET" required:"true"`
	JWTTTL          time.Duration `envconfig:"JWT_TTL" default:"24h"`
	WebSocketOrigin string        `envconfig:"WS_ORIGIN" default:"*"`

	FaucetEnabled bool   `envconfig:"FAUCET_ENABLED" default:"true"`
	FaucetMax     string `envconfig:"FAUCET_MAX" default:"100000"`

	// Execution simulator tuning. Fee and slippage are decimal strings so
	// they survive envconfig without ever touching binary floats.
	SimSymbols      []string      `envconfig:"SIM_SYMBOLS" default:"BTC-USDT,ETH-USDT"`
	SimTickInterval time.Duration `envconfig:"SIM_TICK_INTERVAL" default:"500ms"`
	SimFeeRate      string        `envconfig:"SIM_FEE_RATE" default:"0.001"`
	SimSlippageBps  string        `envconfig:"SIM_SLIPPAGE_BPS" default:"5"`
	SimMaxFillQty   string        `envconfig:"SIM_MAX_FILL_QTY" default:"0"`
	QuoteMaxAge     time.Duration `envconfig:"QUOTE_MAX_AGE" default:"5s"`

	// Lock/expiry housekeeping.
	LockExpiryHorizon time.Duration `envconfig:"LOCK_EXPIRY_HORIZON" default:"24h"`
	ExpirySweep       time.Duration `envconfig:"EXPIRY_SWEEP_INTERVAL" default:"30s"`

	// Mode gate.
	ModeSwitchSecret string        `envconfig:"MODE_SWITCH_SECRET" required:"true"`
	ModeSwitchLimit  int           `envconfig:"MODE_SWITCH_LIMIT" default:"3"`
	ModeSwitchWindow time.Duration `envconfig:"MODE_SWITCH_WINDOW" default:"1h"`
	ModeTokenTTL     time.Duration `envconfig:"MODE_TOKEN_TTL" default:"5m"`
}

func Load() (Config, error) {
	var c Config
	err := envconfig.Process("", &c)
	return c, err
}
