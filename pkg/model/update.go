package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// UpdateKind tags a streaming update payload.
type UpdateKind string

const (
	UpdateTrade     UpdateKind = "trade"
	UpdateQuoteTick UpdateKind = "quote"
	UpdateHeartbeat UpdateKind = "heartbeat"
)

// Update is one streaming event for one instrument. Provider and
// SessionID identify the session that produced it.
type Update struct {
	Instrument Instrument      `json:"instrument"`
	Kind       UpdateKind      `json:"kind"`
	Price      decimal.Decimal `json:"price"`
	Size       decimal.Decimal `json:"size"`
	Ts         time.Time       `json:"ts"`
	Provider   string          `json:"provider,omitempty"`
	SessionID  string          `json:"session_id,omitempty"`
}
