package feed

import (
	"encoding/json"

	"SignalBoard/internal/domain/models"
)

// Callbacks is the set of handlers a channel consumer registers. Nil fields
// are simply not called.
type Callbacks struct {
	OnConnect       func()
	OnDisconnect    func()
	OnError         func(message string)
	OnStatus        func(status models.BotStatus)
	OnBalance       func(balance json.RawMessage)
	OnPositions     func(positions []json.RawMessage)
	OnIncomeHistory func(history []json.RawMessage)
	OnSpotOrders    func(orders []json.RawMessage)
	OnSignals       func(signals []models.ScanSignal)
}

// Merge returns c with every non-nil handler of next laid over it.
func (c Callbacks) Merge(next Callbacks) Callbacks {
	if next.OnConnect != nil {
		c.OnConnect = next.OnConnect
	}
	if next.OnDisconnect != nil {
		c.OnDisconnect = next.OnDisconnect
	}
	if next.OnError != nil {
		c.OnError = next.OnError
	}
	if next.OnStatus != nil {
		c.OnStatus = next.OnStatus
	}
	if next.OnBalance != nil {
		c.OnBalance = next.OnBalance
	}
	if next.OnPositions != nil {
		c.OnPositions = next.OnPositions
	}
	if next.OnIncomeHistory != nil {
		c.OnIncomeHistory = next.OnIncomeHistory
	}
	if next.OnSpotOrders != nil {
		c.OnSpotOrders = next.OnSpotOrders
	}
	if next.OnSignals != nil {
		c.OnSignals = next.OnSignals
	}
	return c
}
