package models

// Requests for the dashboard HTTP endpoints.

type SignalsRequest struct {
	Sort  string `query:"sort" json:"sort" default:"score" validate:"oneof=score symbol time adx"`
	Order string `query:"order" json:"order" default:"desc" validate:"oneof=asc desc"`
	Group string `query:"group" json:"group" validate:"omitempty,oneof=trend state"`
	Q     string `query:"q" json:"q" validate:"max=32"`
}

type SymbolRequest struct {
	Symbol string `json:"symbol" validate:"required,symbol"`
}

type IntervalRequest struct {
	Interval string `json:"interval" validate:"required,oneof=1m 3m 5m 15m 30m 1h 4h 1d"`
}

type ClickRequest struct {
	X float64 `json:"x" validate:"gte=0"`
}

type KeyRequest struct {
	Key string `json:"key" validate:"required,max=16"`
}

type SwipeRequest struct {
	DX        float64 `json:"dx"`
	DY        float64 `json:"dy"`
	OnSurface bool    `json:"on_surface"`
}

type ResizeRequest struct {
	ContainerWidth float64 `json:"container_width" validate:"gt=0,lte=8192"`
	ViewportWidth  float64 `json:"viewport_width" validate:"gte=0,lte=8192"` // 0 means same as container
}
