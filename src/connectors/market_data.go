package connectors

import (
	"context"
	"fmt"

	logger "github.com/sirupsen/logrus"

	"autotrader/src/model"
)

// CurrentSnapshot fetches the live price plus indicators when enough history
// exists. Quote failure fails the snapshot; a missing indicator does not,
// rules that need it simply never fire.
func (c *Client) CurrentSnapshot(ctx context.Context, symbol string) (*model.MarketSnapshot, error) {
	price, err := c.Quote(ctx, symbol)
	if err != nil {
		return nil, err
	}

	snapshot := &model.MarketSnapshot{
		Symbol:     NormalizeSymbol(symbol),
		Price:      price,
		Indicators: map[string]float64{},
		Timestamp:  c.now(),
	}

	period := GetConfig().RSIPeriod
	closes, err := c.DailyClosePrices(ctx, symbol, period*3)
	if err != nil {
		logger.WithField("symbol", symbol).
			WithError(err).Warn("chart fetch failed, snapshot has no indicators")
		return snapshot, nil
	}

	if rsi, ok := RSI(closes, period); ok {
		snapshot.Indicators[model.IndicatorRSI] = rsi
	}
	for _, window := range []int{5, 10, 20} {
		if ma, ok := MovingAverage(closes, window); ok {
			snapshot.Indicators[fmt.Sprintf("MA%d", window)] = ma
		}
	}

	return snapshot, nil
}

// MovingAverage is the simple average of the last window closes. Returns
// false when the series is too short.
func MovingAverage(closes []float64, window int) (float64, bool) {
	if window <= 0 || len(closes) < window {
		return 0, false
	}

	var sum float64
	for _, c := range closes[len(closes)-window:] {
		sum += c
	}
	return sum / float64(window), true
}

// RSI computes the Wilder relative strength index over the given closes.
// Returns false when the series is too short.
func RSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100, true
	}

	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}
