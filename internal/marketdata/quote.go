package marketdata

import (
	"fmt"
	"sync"
	"time"

	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/traderr"

	"github.com/shopspring/decimal"
)

// Quote is one observation from the price feed. All prices are decimals;
// binary floats never touch execution arithmetic.
type Quote struct {
	Symbol    string          `json:"symbol"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Last      decimal.Decimal `json:"last"`
	Timestamp time.Time       `json:"timestamp"`
}

// Provider is the price-quote boundary consumed by the execution simulator.
type Provider interface {
	Quote(symbol string) (Quote, error)
}

// Book is a thread-safe snapshot of the latest quote per symbol. Quotes older
// than maxAge are refused with StaleQuote so settlement never executes
// against a dead feed.
type Book struct {
	mu     sync.RWMutex
	quotes map[string]Quote
	maxAge time.Duration
	now    func() time.Time
}

func NewBook(maxAge time.Duration) *Book {
	return &Book{quotes: make(map[string]Quote), maxAge: maxAge, now: time.Now}
}

func (b *Book) Set(q Quote) {
	if q.Symbol == "" || q.Bid.LessThanOrEqual(decimal.Zero) || q.Ask.LessThanOrEqual(decimal.Zero) {
		return
	}
	b.mu.Lock()
	b.quotes[q.Symbol] = q
	b.mu.Unlock()
}

func (b *Book) Quote(symbol string) (Quote, error) {
	b.mu.RLock()
	q, ok := b.quotes[symbol]
	b.mu.RUnlock()
	if !ok {
		return Quote{}, fmt.Errorf("%w: no quote for %s", traderr.ErrStaleQuote, symbol)
	}
	if b.maxAge > 0 && b.now().Sub(q.Timestamp) > b.maxAge {
		return Quote{}, fmt.Errorf("%w: %s quote is %s old", traderr.ErrStaleQuote, symbol, b.now().Sub(q.Timestamp))
	}
	return q, nil
}
