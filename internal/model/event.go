package model

import (
	"encoding/json"
	"time"
)

// Event is a persisted event record, mirroring what is published to NATS.
// Account is the primary account the event concerns.
type Event struct {
	ID        int64           `json:"id"`
	TxID      string          `json:"tx_id"`
	Topic     string          `json:"topic"`
	Account   Address         `json:"account"`
	Actor     Address         `json:"actor"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
