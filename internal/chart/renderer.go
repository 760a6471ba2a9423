package chart

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"strings"
	"time"

	"SignalBoard/internal/domain/models"
	"SignalBoard/pkg/util"

	"github.com/fogleman/gg"
)

const priceTicks = 5

// Frame is everything one redraw needs.
type Frame struct {
	Layout   Layout
	Data     *models.ChartData
	Symbol   string
	Interval string
	Selected int // -1 when nothing is selected
	ShowMA   bool
	Err      string
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

func WithTheme(t Theme) RendererOption {
	return func(r *Renderer) { r.theme = t }
}

// WithLocation sets the zone for HH:MM time labels.
func WithLocation(loc *time.Location) RendererOption {
	return func(r *Renderer) { r.loc = loc }
}

// Renderer draws frames onto a gg canvas.
type Renderer struct {
	theme Theme
	loc   *time.Location
}

func NewRenderer(opts ...RendererOption) *Renderer {
	r := &Renderer{theme: DarkTheme(), loc: time.Local}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RenderPNG draws f and encodes it as PNG.
func (r *Renderer) RenderPNG(w io.Writer, f Frame) error {
	dc := r.draw(f)
	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// Render draws f and returns the image.
func (r *Renderer) Render(f Frame) image.Image {
	return r.draw(f).Image()
}

func (r *Renderer) draw(f Frame) *gg.Context {
	l := f.Layout
	dc := gg.NewContext(int(l.Width), int(l.Height))

	dc.SetColor(r.theme.Background)
	dc.Clear()

	n := f.Data.Len()
	if n == 0 {
		if f.Err != "" {
			r.drawErrorOverlay(dc, l, f.Err)
		}
		return dc
	}

	d := f.Data
	scale := NewPriceScale(d.Low[:n], d.High[:n], l.Pad.Top, l.ChartHeight())

	r.drawGrid(dc, l, scale)
	r.drawTimeAxis(dc, l, d.Timestamp[:n])
	if f.ShowMA {
		r.drawMA(dc, l, scale, d.EMAFast, n, r.theme.MAFast)
		r.drawMA(dc, l, scale, d.EMAMid, n, r.theme.MAMid)
		r.drawMA(dc, l, scale, d.EMASlow, n, r.theme.MASlow)
	}
	r.drawCloseLine(dc, l, scale, d.Close[:n])
	r.drawCandles(dc, l, scale, d, n)
	r.drawMarkers(dc, l, scale, d, n)
	r.drawSummary(dc, l, f)
	if f.Selected >= 0 && f.Selected < n {
		r.drawSelection(dc, l, scale, d, f.Selected, n)
	}
	if f.Err != "" {
		r.drawErrorOverlay(dc, l, f.Err)
	}
	return dc
}

func (r *Renderer) drawGrid(dc *gg.Context, l Layout, scale PriceScale) {
	ticks := scale.Ticks(priceTicks)
	step := (scale.Max - scale.Min) / float64(priceTicks-1)

	dc.SetLineWidth(1)
	for _, p := range ticks {
		y := math.Round(scale.Y(p)) + 0.5
		dc.SetColor(r.theme.Grid)
		dc.DrawLine(l.Pad.Left, y, l.Width-l.Pad.Right, y)
		dc.Stroke()

		dc.SetColor(r.theme.Muted)
		dc.DrawStringAnchored(formatPrice(p, step), l.Width-4, y, 1, 0.5)
	}
}

func (r *Renderer) drawTimeAxis(dc *gg.Context, l Layout, ts []int64) {
	n := len(ts)
	stride := l.LabelStride(n)
	y := l.Height - l.Pad.Bottom/2

	for i := 0; i < n; i += stride {
		x := l.CandleX(i, n)
		r.drawPlate(dc, util.ClockLabel(ts[i], r.loc), x, y, r.theme.Plate, r.theme.Muted)
	}
}

// drawPlate draws text centred on (x, y) over a filled background box.
func (r *Renderer) drawPlate(dc *gg.Context, text string, x, y float64, bg, fg color.Color) {
	w, h := dc.MeasureString(text)
	dc.SetColor(bg)
	dc.DrawRectangle(x-w/2-4, y-h/2-3, w+8, h+6)
	dc.Fill()
	dc.SetColor(fg)
	dc.DrawStringAnchored(text, x, y, 0.5, 0.5)
}

type point struct{ x, y float64 }

// maSegments splits a moving average into runs of non-null samples. Samples
// beyond the series length count as null.
func maSegments(l Layout, scale PriceScale, series []*float64, n int) [][]point {
	var segs [][]point
	var cur []point
	for i := 0; i < n; i++ {
		if i >= len(series) || series[i] == nil || math.IsNaN(*series[i]) {
			if len(cur) > 0 {
				segs = append(segs, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, point{l.CandleX(i, n), scale.Y(*series[i])})
	}
	if len(cur) > 0 {
		segs = append(segs, cur)
	}
	return segs
}

func (r *Renderer) drawMA(dc *gg.Context, l Layout, scale PriceScale, series []*float64, n int, c color.Color) {
	segs := maSegments(l, scale, series, n)
	if len(segs) == 0 {
		return
	}

	dc.SetColor(c)
	dc.SetLineWidth(1.5)
	for _, seg := range segs {
		if len(seg) < 2 {
			continue
		}
		dc.NewSubPath()
		dc.MoveTo(seg[0].x, seg[0].y)
		for i := 1; i < len(seg)-1; i++ {
			mx := (seg[i].x + seg[i+1].x) / 2
			my := (seg[i].y + seg[i+1].y) / 2
			dc.QuadraticTo(seg[i].x, seg[i].y, mx, my)
		}
		last := seg[len(seg)-1]
		dc.LineTo(last.x, last.y)
	}
	dc.Stroke()
}

func (r *Renderer) drawCloseLine(dc *gg.Context, l Layout, scale PriceScale, closes []float64) {
	n := len(closes)
	if n < 2 {
		return
	}
	dc.SetColor(r.theme.CloseLine)
	dc.SetLineWidth(1)
	dc.SetDash(4, 4)
	dc.MoveTo(l.CandleX(0, n), scale.Y(closes[0]))
	for i := 1; i < n; i++ {
		dc.LineTo(l.CandleX(i, n), scale.Y(closes[i]))
	}
	dc.Stroke()
	dc.SetDash()
}

func (r *Renderer) drawCandles(dc *gg.Context, l Layout, scale PriceScale, d *models.ChartData, n int) {
	bw := l.BodyWidth(n)
	for i := 0; i < n; i++ {
		c := d.Candle(i)
		x := l.CandleX(i, n)
		body, border := r.theme.CandleColors(c.Signal, c.Open, c.Close)

		dc.SetColor(border)
		dc.SetLineWidth(1)
		dc.DrawLine(x, scale.Y(c.High), x, scale.Y(c.Low))
		dc.Stroke()

		top := scale.Y(math.Max(c.Open, c.Close))
		h := math.Max(scale.Y(math.Min(c.Open, c.Close))-top, 1)
		dc.DrawRectangle(x-bw/2, top, bw, h)
		dc.SetColor(body)
		dc.FillPreserve()
		dc.SetColor(border)
		dc.Stroke()
	}
}

// drawMarkers draws 'L' under the candle, 'S' and 'SL' over it, and any
// signal label above that.
func (r *Renderer) drawMarkers(dc *gg.Context, l Layout, scale PriceScale, d *models.ChartData, n int) {
	for i := 0; i < n; i++ {
		c := d.Candle(i)
		x := l.CandleX(i, n)
		above := scale.Y(c.High) - 8

		switch strings.ToUpper(strings.TrimSpace(c.Result)) {
		case "L":
			dc.SetColor(r.theme.MarkLong)
			dc.DrawStringAnchored("L", x, scale.Y(c.Low)+10, 0.5, 0.5)
		case "S":
			dc.SetColor(r.theme.MarkShort)
			dc.DrawStringAnchored("S", x, above, 0.5, 0.5)
			above -= 14
		case "SL":
			dc.SetColor(r.theme.MarkStop)
			dc.DrawStringAnchored("SL", x, above, 0.5, 0.5)
			above -= 14
		}

		if i < len(d.SigLabels) && d.SigLabels[i] != "" {
			dc.SetColor(r.theme.Muted)
			dc.DrawStringAnchored(d.SigLabels[i], x, above, 0.5, 0.5)
		}
	}
}

func (r *Renderer) drawSummary(dc *gg.Context, l Layout, f Frame) {
	parts := []string{f.Symbol}
	if f.Interval != "" {
		parts[0] += " " + f.Interval
	}
	if s := f.Data.Sig; s != nil {
		for _, p := range []string{s.Position, s.Trend, s.Candle} {
			if p != "" {
				parts = append(parts, p)
			}
		}
		if s.Time > 0 {
			parts = append(parts, util.ClockLabel(s.Time, r.loc))
		}
	}
	dc.SetColor(r.theme.Text)
	dc.DrawStringAnchored(strings.Join(parts, " | "), l.Pad.Left+4, l.Pad.Top/2, 0, 0.5)
}

func (r *Renderer) drawSelection(dc *gg.Context, l Layout, scale PriceScale, d *models.ChartData, idx, n int) {
	x := l.CandleX(idx, n)

	dc.SetColor(r.theme.Guide)
	dc.SetLineWidth(1)
	dc.SetDash(3, 3)
	dc.DrawLine(x, l.Pad.Top, x, l.Height-l.Pad.Bottom)
	dc.Stroke()
	dc.SetDash()

	c := d.Candle(idx)
	r.drawPlate(dc, util.ClockLabel(c.Timestamp, r.loc), x, l.Height-l.Pad.Bottom/2, r.theme.Guide, r.theme.Background)

	step := (scale.Max - scale.Min) / float64(priceTicks-1)
	readout := fmt.Sprintf("O %s  H %s  L %s  C %s",
		formatPrice(c.Open, step), formatPrice(c.High, step),
		formatPrice(c.Low, step), formatPrice(c.Close, step))
	dc.SetColor(r.theme.Text)
	dc.DrawStringAnchored(readout, l.Width-l.Pad.Right, l.Pad.Top/2, 1, 0.5)
}

func (r *Renderer) drawErrorOverlay(dc *gg.Context, l Layout, msg string) {
	dc.SetColor(r.theme.Overlay)
	dc.DrawRectangle(0, 0, l.Width, l.Height)
	dc.Fill()

	cx, cy := l.Width/2, l.Height/2
	dc.SetColor(r.theme.ErrorText)
	dc.DrawStringAnchored(msg, cx, cy-10, 0.5, 0.5)
	dc.SetColor(r.theme.Muted)
	dc.DrawStringAnchored("retry: POST /api/chart/retry", cx, cy+10, 0.5, 0.5)
}
