package models

import (
	"fmt"
	"strings"

	"SignalBoard/pkg/util"

	"github.com/tidwall/gjson"
)

// ChartData is one candle dataset for a (symbol, interval) pair as returned by
// the chart endpoint. Arrays are index-aligned; MA samples may be null.
type ChartData struct {
	Symbol        string         `json:"symbol,omitempty"`
	Interval      string         `json:"interval,omitempty"`
	Open          []float64      `json:"open"`
	High          []float64      `json:"high"`
	Low           []float64      `json:"low"`
	Close         []float64      `json:"close"`
	Timestamp     []int64        `json:"timestamp"`
	Signals       []string       `json:"signals"`
	ResultSignals []string       `json:"result_signals"`
	SigLabels     []string       `json:"sig_labels,omitempty"`
	EMAFast       []*float64     `json:"original_ema_7"`
	EMAMid        []*float64     `json:"original_ema_25"`
	EMASlow       []*float64     `json:"original_ema_50"`
	Sig           *SignalSummary `json:"sig,omitempty"`
}

// SignalSummary is the latest signal shown as text on the chart.
type SignalSummary struct {
	Position string `json:"position"`
	Trend    string `json:"trend"`
	Candle   string `json:"candle"`
	Time     int64  `json:"time"` // epoch ms, 0 when unknown
}

// Candle is one index of a ChartData.
type Candle struct {
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Timestamp int64
	Signal    string
	Result    string
}

// Len is the number of complete candles. Mismatched arrays are cut to the
// shortest OHLC/timestamp series.
func (d *ChartData) Len() int {
	if d == nil {
		return 0
	}
	n := len(d.Open)
	for _, l := range []int{len(d.High), len(d.Low), len(d.Close), len(d.Timestamp)} {
		if l < n {
			n = l
		}
	}
	return n
}

// Candle returns candle i. The caller keeps i within Len.
func (d *ChartData) Candle(i int) Candle {
	c := Candle{
		Open:      d.Open[i],
		High:      d.High[i],
		Low:       d.Low[i],
		Close:     d.Close[i],
		Timestamp: d.Timestamp[i],
	}
	if i < len(d.Signals) {
		c.Signal = d.Signals[i]
	}
	if i < len(d.ResultSignals) {
		c.Result = d.ResultSignals[i]
	}
	return c
}

// UnmarshalJSON decodes the chart payload leniently: numbers may arrive as
// strings, arrays may hold nulls, and sig.time may be ms or a date string.
func (d *ChartData) UnmarshalJSON(b []byte) error {
	if !gjson.ValidBytes(b) {
		return fmt.Errorf("chart data: invalid json")
	}
	root := gjson.ParseBytes(b)
	if !root.IsObject() {
		return fmt.Errorf("chart data: expected object, got %s", root.Type)
	}

	*d = ChartData{
		Symbol:        root.Get("symbol").String(),
		Interval:      root.Get("interval").String(),
		Open:          floats(root.Get("open")),
		High:          floats(root.Get("high")),
		Low:           floats(root.Get("low")),
		Close:         floats(root.Get("close")),
		Timestamp:     ints(root.Get("timestamp")),
		Signals:       strs(root.Get("signals")),
		ResultSignals: strs(root.Get("result_signals")),
		SigLabels:     strs(root.Get("sig_labels")),
		EMAFast:       nullableFloats(root.Get("original_ema_7")),
		EMAMid:        nullableFloats(root.Get("original_ema_25")),
		EMASlow:       nullableFloats(root.Get("original_ema_50")),
	}

	if sig := root.Get("sig"); sig.IsObject() {
		s := &SignalSummary{
			Position: sig.Get("position").String(),
			Trend:    sig.Get("trend").String(),
			Candle:   sig.Get("candle").String(),
		}
		switch t := sig.Get("time"); t.Type {
		case gjson.Number:
			s.Time = util.FromEpoch(t.Int()).UnixMilli()
		case gjson.String:
			if ts, ok := util.ParseTime(t.Str); ok {
				s.Time = ts.UnixMilli()
			}
		}
		d.Sig = s
	}
	return nil
}

func floats(r gjson.Result) []float64 {
	if !r.IsArray() {
		return nil
	}
	arr := r.Array()
	out := make([]float64, len(arr))
	for i, v := range arr {
		out[i] = v.Float()
	}
	return out
}

func nullableFloats(r gjson.Result) []*float64 {
	if !r.IsArray() {
		return nil
	}
	arr := r.Array()
	out := make([]*float64, len(arr))
	for i, v := range arr {
		if v.Type == gjson.Null || (v.Type == gjson.String && strings.TrimSpace(v.Str) == "") {
			continue
		}
		f := v.Float()
		out[i] = &f
	}
	return out
}

func ints(r gjson.Result) []int64 {
	if !r.IsArray() {
		return nil
	}
	arr := r.Array()
	out := make([]int64, len(arr))
	for i, v := range arr {
		out[i] = v.Int()
	}
	return out
}

func strs(r gjson.Result) []string {
	if !r.IsArray() {
		return nil
	}
	arr := r.Array()
	out := make([]string, len(arr))
	for i, v := range arr {
		if v.Type == gjson.Null {
			continue
		}
		out[i] = v.String()
	}
	return out
}
