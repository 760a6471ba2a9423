package feed

import (
	"encoding/json"
	"errors"
	"strings"

	"SignalBoard/internal/domain/models"

	"github.com/tidwall/gjson"
)

// ErrMalformedFrame is returned by Classify for frames that are not JSON.
var ErrMalformedFrame = errors.New("malformed frame")

const genericServerError = "Unknown server error"

// Kind is the closed set of normalized event variants.
type Kind int

const (
	KindUnknown Kind = iota
	KindStatus
	KindBalance
	KindPositions
	KindIncomeHistory
	KindSpotOrders
	KindSignals
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindBalance:
		return "balance"
	case KindPositions:
		return "positions"
	case KindIncomeHistory:
		return "income_history"
	case KindSpotOrders:
		return "spot_orders"
	case KindSignals:
		return "signals"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one classified frame. Only the field matching Kind is set.
type Event struct {
	Kind    Kind
	Name    string // kind string as sent, empty for bare arrays
	Status  models.BotStatus
	Payload json.RawMessage
	Items   []json.RawMessage
	Signals []models.ScanSignal
	Skipped int // non-object entries dropped from a signal batch
	Message string
	Raw     json.RawMessage
}

// Classify decodes one frame into an Event. The kind comes from the "event"
// field, else "type", else a bare array is read as a signal batch. Kind
// strings outside the known set fall back on substring inference.
func Classify(raw []byte) (Event, error) {
	if !gjson.ValidBytes(raw) {
		return Event{}, ErrMalformedFrame
	}
	root := gjson.ParseBytes(raw)
	ev := Event{Raw: append(json.RawMessage(nil), raw...)}

	if root.IsArray() {
		ev.Kind = KindSignals
		ev.Signals, ev.Skipped = decodeSignals(root)
		return ev, nil
	}
	if !root.IsObject() {
		return ev, nil
	}

	ev.Name = kindName(root)
	data := root.Get("data")

	switch ev.Name {
	case "bot_status", "status_update":
		src := data
		if !src.IsObject() {
			src = root
		}
		ev.Kind = KindStatus
		ev.Status = models.BotStatus{
			Running:  src.Get("running").Bool(),
			StopFlag: src.Get("stop_flag").Bool(),
		}
	case "balance":
		ev.Kind = KindBalance
		ev.Payload = rawOrNull(data)
	case "balance_update", "account_update":
		ev.Kind = KindBalance
		ev.Payload = balancePayload(data)
	case "positions", "position_update":
		ev.Kind = KindPositions
		ev.Items = toArray(data)
	case "income_history":
		ev.Kind = KindIncomeHistory
		ev.Items = toArray(data)
	case "spot_orders":
		ev.Kind = KindSpotOrders
		ev.Items = toArray(data)
	case "scan_signal":
		if data.IsArray() {
			ev.Kind = KindSignals
			ev.Signals, ev.Skipped = decodeSignals(data)
		}
	case "error":
		ev.Kind = KindError
		ev.Message = errorMessage(root, data)
	default:
		lower := strings.ToLower(ev.Name)
		switch {
		case lower == "":
		case strings.Contains(lower, "balance"), strings.Contains(lower, "account"):
			ev.Kind = KindBalance
			ev.Payload = balancePayload(data)
		case strings.Contains(lower, "position"):
			ev.Kind = KindPositions
			ev.Items = toArray(data)
		}
	}
	return ev, nil
}

func kindName(root gjson.Result) string {
	if e := root.Get("event"); e.Type == gjson.String && e.Str != "" {
		return e.Str
	}
	if t := root.Get("type"); t.Type == gjson.String {
		return t.Str
	}
	return ""
}

func balancePayload(data gjson.Result) json.RawMessage {
	if b := data.Get("balance"); data.IsObject() && b.Exists() {
		return json.RawMessage(b.Raw)
	}
	return rawOrNull(data)
}

func rawOrNull(r gjson.Result) json.RawMessage {
	if !r.Exists() {
		return json.RawMessage("null")
	}
	return json.RawMessage(r.Raw)
}

// toArray normalizes a payload to a list: missing or null is empty, an array
// is its elements, anything else is wrapped.
func toArray(r gjson.Result) []json.RawMessage {
	if !r.Exists() || r.Type == gjson.Null {
		return []json.RawMessage{}
	}
	if !r.IsArray() {
		return []json.RawMessage{json.RawMessage(r.Raw)}
	}
	arr := r.Array()
	out := make([]json.RawMessage, 0, len(arr))
	for _, v := range arr {
		out = append(out, json.RawMessage(v.Raw))
	}
	return out
}

func errorMessage(root, data gjson.Result) string {
	if data.Type == gjson.String && data.Str != "" {
		return data.Str
	}
	if m := data.Get("message"); data.IsObject() && m.Type == gjson.String && m.Str != "" {
		return m.Str
	}
	if m := root.Get("message"); m.Type == gjson.String && m.Str != "" {
		return m.Str
	}
	return genericServerError
}

func decodeSignals(arr gjson.Result) ([]models.ScanSignal, int) {
	items := arr.Array()
	out := make([]models.ScanSignal, 0, len(items))
	skipped := 0
	for _, v := range items {
		if !v.IsObject() {
			skipped++
			continue
		}
		s := models.ScanSignal{
			Symbol:  v.Get("symbol").String(),
			Time:    v.Get("time").Int(),
			State:   v.Get("state").String(),
			Score:   v.Get("score").Float(),
			EMAFast: v.Get("ema_fast").Float(),
			EMASlow: v.Get("ema_slow").Float(),
			EMA50:   v.Get("ema_50").Float(),
			ADX:     v.Get("adx").Float(),
		}
		if t := v.Get("trend"); t.Type == gjson.String && t.Str != "" {
			trend := models.Trend(t.Str)
			s.Trend = &trend
		}
		out = append(out, s)
	}
	return out, skipped
}
