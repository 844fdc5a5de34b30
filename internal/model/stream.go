package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Stream message types recognized on the push channel.
const (
	MsgConnectionEstablished = "connection_established"
	MsgPRUpdate              = "pr_update"
	MsgStatsUpdate           = "repository_stats_update"
	MsgError                 = "error"
)

// ChangeType classifies a pr_update payload.
type ChangeType string

const (
	ChangeNew     ChangeType = "new"
	ChangeUpdated ChangeType = "updated"
	ChangeClosed  ChangeType = "closed"
)

// StreamMessage is the JSON envelope for every non-heartbeat frame on the
// push channel.
type StreamMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Payload is the closed set of decoded stream payloads. Unknown message
// types decode to Dropped so callers handle them uniformly.
type Payload interface {
	isPayload()
}

// ConnectionEstablished is the greeting sent by the server on connect.
type ConnectionEstablished struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message,omitempty"`
}

// PRUpdate carries a single item change.
type PRUpdate struct {
	SubscriptionID string      `json:"subscription_id"`
	ChangeType     ChangeType  `json:"change_type"`
	Item           *ReviewItem `json:"item"`
}

// StatsUpdate carries refreshed aggregate counters for one subscription.
type StatsUpdate struct {
	SubscriptionID string            `json:"subscription_id"`
	Stats          SubscriptionStats `json:"stats"`
}

// StreamError is a server-side error surfaced over the channel.
type StreamError struct {
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
}

// Dropped marks a message whose type was not recognized. The raw type is
// kept for logging.
type Dropped struct {
	Type string
}

func (ConnectionEstablished) isPayload() {}
func (PRUpdate) isPayload()              {}
func (StatsUpdate) isPayload()           {}
func (StreamError) isPayload()           {}
func (Dropped) isPayload()               {}

// DecodePayload parses the data portion of a stream message into its typed
// payload. Unrecognized types return Dropped, never an error; a payload that
// fails to parse for a recognized type is malformed and returns an error.
func DecodePayload(msg *StreamMessage) (Payload, error) {
	switch msg.Type {
	case MsgConnectionEstablished:
		var p ConnectionEstablished
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", msg.Type, err)
		}
		return p, nil
	case MsgPRUpdate:
		var p PRUpdate
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", msg.Type, err)
		}
		return p, nil
	case MsgStatsUpdate:
		var p StatsUpdate
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", msg.Type, err)
		}
		return p, nil
	case MsgError:
		var p StreamError
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", msg.Type, err)
		}
		return p, nil
	default:
		return Dropped{Type: msg.Type}, nil
	}
}
