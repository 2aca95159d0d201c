package marketdata

import (
	"context"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var seedPrices = map[string]decimal.Decimal{
	"BTC-USDT": decimal.NewFromInt(50000),
	"ETH-USDT": decimal.NewFromInt(3000),
	"SOL-USDT": decimal.NewFromInt(150),
}

// halfSpreadBps and stepBps shape the random walk: a fixed half-spread around
// a drifting mid price.
const (
	halfSpreadBps = 2
	stepBps       = 10
)

// Feed is the paper-mode price source: a per-symbol random walk published to
// the quote book and the event bus on a fixed interval.
type Feed struct {
	book     *Book
	bus      *Bus
	symbols  []string
	interval time.Duration
	log      *logrus.Entry
	rng      *rand.Rand
	mids     map[string]decimal.Decimal
}

func NewFeed(book *Book, bus *Bus, symbols []string, interval time.Duration, log *logrus.Logger) *Feed {
	mids := make(map[string]decimal.Decimal, len(symbols))
	for _, s := range symbols {
		mid, ok := seedPrices[s]
		if !ok {
			mid = decimal.NewFromInt(100)
		}
		mids[s] = mid
	}
	return &Feed{
		book:     book,
		bus:      bus,
		symbols:  symbols,
		interval: interval,
		log:      log.WithField("component", "feed"),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		mids:     mids,
	}
}

// Run publishes quotes until the context is canceled.
func (f *Feed) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	f.log.WithField("symbols", f.symbols).Info("paper price feed started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, symbol := range f.symbols {
				f.tick(symbol)
			}
		}
	}
}

func (f *Feed) tick(symbol string) {
	mid := f.mids[symbol]
	// Signed step in [-stepBps, +stepBps] applied as a fraction of mid.
	bps := decimal.NewFromInt(int64(f.rng.Intn(2*stepBps+1) - stepBps))
	mid = mid.Add(mid.Mul(bps).Div(decimal.NewFromInt(10000)))
	if mid.LessThanOrEqual(decimal.Zero) {
		mid = f.mids[symbol]
	}
	f.mids[symbol] = mid

	half := mid.Mul(decimal.NewFromInt(halfSpreadBps)).Div(decimal.NewFromInt(10000))
	q := Quote{
		Symbol:    symbol,
		Bid:       mid.Sub(half),
		Ask:       mid.Add(half),
		Last:      mid,
		Timestamp: time.Now().UTC(),
	}
	f.book.Set(q)
	f.bus.Publish(Event{Type: "quote", Data: q})
}
