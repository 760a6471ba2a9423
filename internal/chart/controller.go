package chart

import (
	"math"
	"strings"
	"sync"

	"SignalBoard/internal/domain/models"
)

// Key is a navigation key.
type Key int

const (
	KeyNone Key = iota
	KeyLeft
	KeyRight
	KeyUp
	KeyDown
)

// ParseKey accepts DOM key names ("ArrowLeft") and short forms ("left").
func ParseKey(s string) (Key, bool) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "Arrow")) {
	case "left":
		return KeyLeft, true
	case "right":
		return KeyRight, true
	case "up":
		return KeyUp, true
	case "down":
		return KeyDown, true
	default:
		return KeyNone, false
	}
}

// LoadRequest identifies one candle fetch. Finish only applies the result of
// the latest request for the symbol still on screen.
type LoadRequest struct {
	Symbol   string
	Interval string
	seq      uint64
}

// State is a read-only view of the controller for the status API.
type State struct {
	Symbol   string   `json:"symbol"`
	Interval string   `json:"interval"`
	Symbols  []string `json:"symbols"`
	Selected *int     `json:"selected"`
	Candles  int      `json:"candles"`
	ShowMA   bool     `json:"show_ma"`
	Loading  bool     `json:"loading"`
	Error    string   `json:"error,omitempty"`
	Width    float64  `json:"width"`
	Height   float64  `json:"height"`
}

// Controller holds chart selection and navigation state. It never does I/O;
// symbol changes are reported to the caller, who fetches and calls Finish.
type Controller struct {
	mu       sync.Mutex
	layout   Layout
	symbols  []string
	symbol   string
	interval string
	data     *models.ChartData
	selected int
	showMA   bool
	loading  bool
	err      string
	seq      uint64
}

func NewController(containerWidth, viewportWidth float64, interval string, showMA bool) *Controller {
	return &Controller{
		layout:   NewLayout(containerWidth, viewportWidth),
		interval: interval,
		selected: -1,
		showMA:   showMA,
	}
}

// SetSymbols replaces the navigation list.
func (c *Controller) SetSymbols(symbols []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.symbols = append([]string(nil), symbols...)
}

func (c *Controller) Symbols() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.symbols...)
}

func (c *Controller) Symbol() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.symbol
}

// SelectSymbol switches symbol, dropping the selection and the dataset. It
// reports whether anything changed.
func (c *Controller) SelectSymbol(symbol string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectSymbolLocked(symbol)
}

// SetInterval switches interval and drops the dataset.
func (c *Controller) SetInterval(interval string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if interval == "" || interval == c.interval {
		return false
	}
	c.interval = interval
	c.resetLocked()
	return true
}

func (c *Controller) selectSymbolLocked(symbol string) bool {
	if symbol == "" || symbol == c.symbol {
		return false
	}
	c.symbol = symbol
	c.resetLocked()
	return true
}

func (c *Controller) resetLocked() {
	c.data = nil
	c.selected = -1
	c.err = ""
}

// BeginLoad starts a fetch for the current symbol. ok is false when no symbol
// is selected.
func (c *Controller) BeginLoad() (LoadRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.symbol == "" {
		return LoadRequest{}, false
	}
	c.seq++
	c.loading = true
	return LoadRequest{Symbol: c.symbol, Interval: c.interval, seq: c.seq}, true
}

// Finish applies a fetch result. Responses for a symbol or interval no longer
// on screen, or superseded by a later request, are discarded.
func (c *Controller) Finish(req LoadRequest, data *models.ChartData, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if req.seq != c.seq || req.Symbol != c.symbol || req.Interval != c.interval {
		return false
	}
	c.loading = false
	c.selected = -1
	if err != nil {
		c.data = nil
		c.err = err.Error()
		return true
	}
	c.data = data
	c.err = ""
	return true
}

// Click toggles the selection of the candle under x.
func (c *Controller) Click(x float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx, ok := c.layout.IndexAt(x, c.data.Len())
	if !ok {
		return
	}
	if c.selected == idx {
		c.selected = -1
		return
	}
	c.selected = idx
}

// Key handles a navigation key. It reports whether the symbol changed.
func (c *Controller) Key(k Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch k {
	case KeyLeft, KeyRight:
		c.moveSelectionLocked(k)
		return false
	case KeyUp:
		return c.cycleLocked(-1)
	case KeyDown:
		return c.cycleLocked(1)
	}
	return false
}

// Swipe handles a touch gesture. Only horizontal swipes that start outside the
// drawing surface navigate: left goes to the next symbol, right to the previous.
func (c *Controller) Swipe(dx, dy float64, onSurface bool) bool {
	if onSurface || math.Abs(dx) < swipeMinDelta || math.Abs(dx) <= math.Abs(dy) {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if dx < 0 {
		return c.cycleLocked(1)
	}
	return c.cycleLocked(-1)
}

// Next and Prev cycle symbols with wrap-around.
func (c *Controller) Next() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cycleLocked(1)
}

func (c *Controller) Prev() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cycleLocked(-1)
}

func (c *Controller) moveSelectionLocked(k Key) {
	n := c.data.Len()
	if n == 0 {
		return
	}
	if c.selected < 0 {
		if k == KeyLeft {
			c.selected = n - 1
		} else {
			c.selected = 0
		}
		return
	}
	if k == KeyLeft && c.selected > 0 {
		c.selected--
	}
	if k == KeyRight && c.selected < n-1 {
		c.selected++
	}
}

func (c *Controller) cycleLocked(step int) bool {
	n := len(c.symbols)
	if n == 0 {
		return false
	}
	cur := -1
	for i, s := range c.symbols {
		if s == c.symbol {
			cur = i
			break
		}
	}
	if cur < 0 {
		return false
	}
	return c.selectSymbolLocked(c.symbols[((cur+step)%n+n)%n])
}

// Resize recomputes the layout for a new container or viewport.
func (c *Controller) Resize(containerWidth, viewportWidth float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.layout = NewLayout(containerWidth, viewportWidth)
}

// ToggleMA flips the moving-average overlay and returns the new setting.
func (c *Controller) ToggleMA() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.showMA = !c.showMA
	return c.showMA
}

// Frame snapshots what the renderer needs.
func (c *Controller) Frame() Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Frame{
		Layout:   c.layout,
		Data:     c.data,
		Symbol:   c.symbol,
		Interval: c.interval,
		Selected: c.selected,
		ShowMA:   c.showMA,
		Err:      c.err,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := State{
		Symbol:   c.symbol,
		Interval: c.interval,
		Symbols:  append([]string(nil), c.symbols...),
		Candles:  c.data.Len(),
		ShowMA:   c.showMA,
		Loading:  c.loading,
		Error:    c.err,
		Width:    c.layout.Width,
		Height:   c.layout.Height,
	}
	if c.selected >= 0 {
		sel := c.selected
		st.Selected = &sel
	}
	return st
}
