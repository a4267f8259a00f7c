package websocket

import "github.com/stemsi/classbook/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionWatch   Action = "watch"
	ActionUnwatch Action = "unwatch"
	ActionPing    Action = "ping"
)

// Request is sent by the client. Date (YYYY-MM-DD) is required for watch
// and unwatch.
type Request struct {
	Action Action `json:"action"`
	Date   string `json:"date,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError        Event = "error"
	EventAvailability Event = "availability"
	EventPong         Event = "pong"
)

// AvailabilityResponse carries the current count of a watched occurrence.
// It is sent once on watch and again after every signup for that date.
type AvailabilityResponse struct {
	Event        Event              `json:"event"`
	Availability model.Availability `json:"availability"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
