package chart

import (
	"image/color"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Theme holds every colour the renderer uses.
type Theme struct {
	Background color.Color
	Grid       color.Color
	Text       color.Color
	Muted      color.Color
	Plate      color.Color
	CloseLine  color.Color
	Guide      color.Color
	Bullish    color.Color
	Bearish    color.Color
	MAFast     color.Color
	MAMid      color.Color
	MASlow     color.Color
	MarkLong   color.Color
	MarkShort  color.Color
	MarkStop   color.Color
	Overlay    color.Color
	ErrorText  color.Color
}

func hex(v uint32) color.RGBA {
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}

func DarkTheme() Theme {
	return Theme{
		Background: hex(0x0f172a),
		Grid:       hex(0x1e293b),
		Text:       hex(0xe2e8f0),
		Muted:      hex(0x94a3b8),
		Plate:      hex(0x1e293b),
		CloseLine:  color.NRGBA{R: 0x94, G: 0xa3, B: 0xb8, A: 0x66},
		Guide:      hex(0xfacc15),
		Bullish:    hex(0x22c55e),
		Bearish:    hex(0xef4444),
		MAFast:     hex(0xf59e0b),
		MAMid:      hex(0x3b82f6),
		MASlow:     hex(0xa855f7),
		MarkLong:   hex(0x4ade80),
		MarkShort:  hex(0xf87171),
		MarkStop:   hex(0xfb923c),
		Overlay:    color.NRGBA{R: 0x45, G: 0x0a, B: 0x0a, A: 0xcc},
		ErrorText:  hex(0xfca5a5),
	}
}

// signalBodies maps signal codes to candle body colours.
var signalBodies = map[string]color.Color{
	"LONG_START":  hex(0x16a34a),
	"LONG":        hex(0x4ade80),
	"SHORT_START": hex(0xdc2626),
	"SHORT":       hex(0xf87171),
	"WATCH":       hex(0xeab308),
	"EXIT":        hex(0x8b5cf6),
	"NEUTRAL":     hex(0x64748b),
}

// CandleColors returns body and border for one candle. The body follows the
// signal table and falls back to bullish/bearish; the border always follows
// close versus open.
func (t Theme) CandleColors(signal string, open, close float64) (body, border color.Color) {
	border = t.Bearish
	if close >= open {
		border = t.Bullish
	}
	if c, ok := signalBodies[strings.ToUpper(strings.TrimSpace(signal))]; ok {
		return c, border
	}
	return border, border
}

// formatPrice renders a price with enough decimals to tell ticks step apart.
func formatPrice(v, step float64) string {
	return decimal.NewFromFloat(v).StringFixed(precision(step))
}

func precision(step float64) int32 {
	if step <= 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return 2
	}
	p := int32(math.Ceil(-math.Log10(step)))
	if p < 0 {
		p = 0
	}
	if p > 8 {
		p = 8
	}
	return p
}
