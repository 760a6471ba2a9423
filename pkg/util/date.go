package util

import (
    "strconv"
    "strings"
    "time"
)

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds or milliseconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
    s = strings.TrimSpace(s)
    if s == "" {
        return time.Time{}, false
    }
    if t, err := time.Parse(time.RFC3339, s); err == nil {
        return t, true
    }
    if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
        return t, true
    }
    if t, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.Local); err == nil {
        return t, true
    }
    if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
        return FromEpoch(ts), true
    }
    return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
    if t, ok := ParseTime(s); ok {
        return t
    }
    return def
}

// FromEpoch converts an epoch value to time. Values past year 33658 in
// seconds are taken as milliseconds, which is what the bot sends.
func FromEpoch(v int64) time.Time {
    if v > 1e12 || v < -1e12 {
        return time.UnixMilli(v)
    }
    return time.Unix(v, 0)
}

// ClockLabel formats an epoch-ms timestamp as HH:MM wall-clock time in loc.
func ClockLabel(ms int64, loc *time.Location) string {
    if loc == nil {
        loc = time.Local
    }
    return time.UnixMilli(ms).In(loc).Format("15:04")
}
