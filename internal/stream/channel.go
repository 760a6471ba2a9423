package stream

import (
	"fmt"
	"net/url"
	"strings"
)

// Channel identifies one of the two bot streams.
type Channel string

const (
	ChannelAccount Channel = "account"
	ChannelSignal  Channel = "signal"
)

// Path is the websocket path of the channel on the bot backend.
func (ch Channel) Path() string {
	switch ch {
	case ChannelAccount:
		return "/api/v1/futures/websocket/account"
	default:
		return "/api/v1/futures/websocket/client"
	}
}

// BuildURL derives the socket endpoint from the REST base URL.
func BuildURL(base string, ch Channel, token string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + ch.Path() + "?token=" + url.QueryEscape(token)
}

// redact drops the query string so tokens never reach the logs.
func redact(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		return endpoint[:i]
	}
	return endpoint
}

// State is the lifecycle state of a Connection.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "idle"
	}
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for st := StateIdle; st <= StateClosed; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown connection state %q", b)
}
