package feed

import (
	applogger "SignalBoard/pkg/logger"
)

// Dispatch hands ev to exactly one handler of cb. It returns false when the
// event was dropped, either because it is Unknown or nobody registered for it.
func Dispatch(ev Event, cb Callbacks, log *applogger.Logger) bool {
	switch ev.Kind {
	case KindStatus:
		if cb.OnStatus != nil {
			cb.OnStatus(ev.Status)
			return true
		}
	case KindBalance:
		if cb.OnBalance != nil {
			cb.OnBalance(ev.Payload)
			return true
		}
	case KindPositions:
		if cb.OnPositions != nil {
			cb.OnPositions(ev.Items)
			return true
		}
	case KindIncomeHistory:
		if cb.OnIncomeHistory != nil {
			cb.OnIncomeHistory(ev.Items)
			return true
		}
	case KindSpotOrders:
		if cb.OnSpotOrders != nil {
			cb.OnSpotOrders(ev.Items)
			return true
		}
	case KindSignals:
		if ev.Skipped > 0 && log != nil {
			log.Debug("signal batch entries skipped", applogger.Int("skipped", ev.Skipped))
		}
		if cb.OnSignals != nil {
			cb.OnSignals(ev.Signals)
			return true
		}
	case KindError:
		if cb.OnError != nil {
			cb.OnError(ev.Message)
			return true
		}
	default:
		if log != nil {
			log.Warn("unrecognized frame dropped",
				applogger.String("kind", ev.Name),
				applogger.Int("bytes", len(ev.Raw)),
			)
		}
		return false
	}

	if log != nil {
		log.Debug("no handler registered for event", applogger.String("kind", ev.Kind.String()))
	}
	return false
}
