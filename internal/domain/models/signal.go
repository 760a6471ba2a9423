package models

import "strings"

// Trend is the directional classification of a scan signal.
type Trend string

const (
	TrendBullish Trend = "Bullish"
	TrendBearish Trend = "Bearish"
	TrendNeutral Trend = "Neutral"
)

// ScanSignal is one row of the scanner snapshot pushed on the signal channel.
// Every batch replaces the whole previous set.
type ScanSignal struct {
	Symbol  string  `json:"symbol"`
	Time    int64   `json:"time"` // epoch ms
	Trend   *Trend  `json:"trend"`
	State   string  `json:"state"`
	Score   float64 `json:"score"`
	EMAFast float64 `json:"ema_fast"`
	EMASlow float64 `json:"ema_slow"`
	EMA50   float64 `json:"ema_50"`
	ADX     float64 `json:"adx"`
}

// EffectiveTrend returns the explicit trend, or derives one from EMA ordering
// when the backend left it null. Known trends match case-insensitively.
func (s ScanSignal) EffectiveTrend() Trend {
	if s.Trend != nil {
		if t := strings.TrimSpace(string(*s.Trend)); t != "" {
			for _, known := range []Trend{TrendBullish, TrendBearish, TrendNeutral} {
				if strings.EqualFold(t, string(known)) {
					return known
				}
			}
			return Trend(t)
		}
	}
	switch {
	case s.EMAFast > s.EMASlow && s.EMASlow > s.EMA50:
		return TrendBullish
	case s.EMAFast < s.EMASlow && s.EMASlow < s.EMA50:
		return TrendBearish
	default:
		return TrendNeutral
	}
}

// BotStatus mirrors the bot's run flags.
type BotStatus struct {
	Running  bool `json:"running"`
	StopFlag bool `json:"stop_flag"`
}
