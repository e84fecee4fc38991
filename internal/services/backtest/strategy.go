package backtest

import (
	"errors"

	"Aurelius/internal/domain/models"
)

// Strategy turns the initial snapshot of each ticker into portfolio weights.
type Strategy interface {
	Kind() Kind
	// Required lists the input columns the strategy reads.
	Required() []string
	// Eligible reports whether a first row can seed a position.
	Eligible(first models.JoinedRecord) bool
	// Weights returns one weight per snapshot, summing to 1.
	Weights(snapshots []models.JoinedRecord) ([]float64, error)
}

var errZeroMarketCap = errors.New("total initial market cap is zero")

type marketCapWeighted struct{}

func (marketCapWeighted) Kind() Kind { return MarketCapWeighted }

func (marketCapWeighted) Required() []string {
	return []string{models.ColTicker, models.ColDate, models.ColClose, models.ColMarketCap}
}

func (marketCapWeighted) Eligible(r models.JoinedRecord) bool {
	return r.Close > 0 && r.MarketCap > 0
}

func (marketCapWeighted) Weights(snaps []models.JoinedRecord) ([]float64, error) {
	var total float64
	for _, s := range snaps {
		total += float64(s.MarketCap)
	}
	if total <= 0 {
		return nil, errZeroMarketCap
	}
	w := make([]float64, len(snaps))
	for i, s := range snaps {
		w[i] = float64(s.MarketCap) / total
	}
	return w, nil
}

type equalWeighted struct{}

func (equalWeighted) Kind() Kind { return EqualWeighted }

func (equalWeighted) Required() []string {
	return []string{models.ColTicker, models.ColDate, models.ColClose}
}

func (equalWeighted) Eligible(r models.JoinedRecord) bool { return r.Close > 0 }

func (equalWeighted) Weights(snaps []models.JoinedRecord) ([]float64, error) {
	w := make([]float64, len(snaps))
	n := float64(len(snaps))
	for i := range w {
		w[i] = 1 / n
	}
	return w, nil
}
