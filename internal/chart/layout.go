package chart

import "math"

const (
	breakpoint    = 768.0
	bodyRatio     = 0.7
	maxBodyWidth  = 14.0
	minSurfaceW   = 160.0
	swipeMinDelta = 50.0
)

// Padding reserves room around the plot for axis labels.
type Padding struct {
	Top, Right, Bottom, Left float64
}

// Layout is the pixel geometry of the drawing surface.
type Layout struct {
	Width           float64
	Height          float64
	Pad             Padding
	Narrow          bool
	MinLabelSpacing float64
}

// NewLayout sizes the surface for a container inside a viewport. Viewports
// under 768px get the narrow constants.
func NewLayout(containerWidth, viewportWidth float64) Layout {
	narrow := viewportWidth < breakpoint

	hPad, aspect, maxH := 48.0, 0.5, 560.0
	pad := Padding{Top: 24, Right: 80, Bottom: 36, Left: 16}
	spacing := 84.0
	if narrow {
		hPad, aspect, maxH = 24, 0.75, 360
		pad = Padding{Top: 16, Right: 56, Bottom: 28, Left: 8}
		spacing = 56
	}

	w := math.Floor(containerWidth - hPad)
	if w < minSurfaceW {
		w = minSurfaceW
	}
	h := math.Floor(math.Min(w*aspect, maxH))

	return Layout{
		Width:           w,
		Height:          h,
		Pad:             pad,
		Narrow:          narrow,
		MinLabelSpacing: spacing,
	}
}

func (l Layout) ChartWidth() float64 {
	return l.Width - l.Pad.Left - l.Pad.Right
}

func (l Layout) ChartHeight() float64 {
	return l.Height - l.Pad.Top - l.Pad.Bottom
}

// Slot is the horizontal space owned by each of n candles.
func (l Layout) Slot(n int) float64 {
	if n <= 0 {
		return 0
	}
	return l.ChartWidth() / float64(n)
}

// CandleX is the centre x of candle i.
func (l Layout) CandleX(i, n int) float64 {
	slot := l.Slot(n)
	return l.Pad.Left + slot*float64(i) + slot/2
}

// IndexAt maps an x coordinate back to a candle index. Points left or right
// of the plot resolve to nothing.
func (l Layout) IndexAt(x float64, n int) (int, bool) {
	slot := l.Slot(n)
	if slot <= 0 {
		return 0, false
	}
	rel := x - l.Pad.Left
	if rel < 0 || rel >= l.ChartWidth() {
		return 0, false
	}
	idx := int(math.Floor(rel / slot))
	if idx >= n {
		idx = n - 1
	}
	return idx, true
}

func (l Layout) BodyWidth(n int) float64 {
	return math.Min(l.Slot(n)*bodyRatio, maxBodyWidth)
}

// LabelStride is how many candles to skip between time labels so labels sit
// at least MinLabelSpacing apart.
func (l Layout) LabelStride(n int) int {
	slot := l.Slot(n)
	if slot <= 0 {
		return 1
	}
	stride := int(math.Ceil(l.MinLabelSpacing / slot))
	if stride < 1 {
		stride = 1
	}
	return stride
}

// PriceScale maps prices to y coordinates, highest price at the top.
type PriceScale struct {
	Min    float64
	Max    float64
	top    float64
	height float64
}

// NewPriceScale spans min(low)..max(high) plus 10% headroom each side. A flat
// series gets a spread of 0.1% of its price (1 at price zero) first.
func NewPriceScale(lows, highs []float64, top, height float64) PriceScale {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range lows {
		if v < lo {
			lo = v
		}
	}
	for _, v := range highs {
		if v > hi {
			hi = v
		}
	}
	if math.IsInf(lo, 1) || math.IsInf(hi, -1) {
		lo, hi = 0, 0
	}
	if lo > hi {
		lo, hi = hi, lo
	}

	rng := hi - lo
	if rng <= 0 {
		spread := math.Abs(hi) * 0.001
		if spread == 0 {
			spread = 1
		}
		lo -= spread / 2
		hi += spread / 2
		rng = spread
	}
	headroom := rng * 0.1

	return PriceScale{
		Min:    lo - headroom,
		Max:    hi + headroom,
		top:    top,
		height: height,
	}
}

func (p PriceScale) Y(price float64) float64 {
	return p.top + (p.Max-price)/(p.Max-p.Min)*p.height
}

// Ticks returns n evenly spaced prices from Max down to Min.
func (p PriceScale) Ticks(n int) []float64 {
	if n < 2 {
		n = 2
	}
	step := (p.Max - p.Min) / float64(n-1)
	out := make([]float64, n)
	for i := range out {
		out[i] = p.Max - step*float64(i)
	}
	return out
}
