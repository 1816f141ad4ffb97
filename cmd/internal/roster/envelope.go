package roster

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"clubhouse/cmd/internal/attendance"
)

// Version is embedded in every envelope.
const Version = 1

// Subprotocol must be offered by clients during the WebSocket handshake.
const Subprotocol = "clubhouse.roster.v1"

const (
	TypeSnapshot        = "roster.snapshot"
	TypeSnapshotRequest = "roster.snapshot_request"
	TypeSignedIn        = string(attendance.EventSignedIn)
	TypeSignedOut       = string(attendance.EventSignedOut)
	TypeError           = "error"
)

// Envelope is the wire wrapper for every frame in both directions.
type Envelope struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ValidateInbound checks a client frame. Clients may only request snapshots.
func (e Envelope) ValidateInbound() error {
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %d", e.V)
	}
	if e.Type == "" {
		return errors.New("missing type")
	}
	if e.Type != TypeSnapshotRequest {
		return fmt.Errorf("unsupported type: %s", e.Type)
	}
	return nil
}

// Entry is one visit on the wire.
type Entry struct {
	RecordID        string     `json:"record_id"`
	UserID          int64      `json:"user_id"`
	CheckedInAt     time.Time  `json:"checked_in_at"`
	CheckedOutAt    *time.Time `json:"checked_out_at,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	Username        string     `json:"username,omitempty"`
	Name            string     `json:"name,omitempty"`
	Surname         string     `json:"surname,omitempty"`
	Role            string     `json:"role,omitempty"`
}

type Counts struct {
	SignedIn  int `json:"signed_in"`
	SignedOut int `json:"signed_out"`
	Total     int `json:"total"`
}

type SnapshotPayload struct {
	Date      string  `json:"date"`
	SignedIn  []Entry `json:"signed_in"`
	SignedOut []Entry `json:"signed_out"`
	Counts    Counts  `json:"counts"`
}

// EventPayload carries a single transition.
type EventPayload struct {
	RecordID        string    `json:"record_id"`
	UserID          int64     `json:"user_id"`
	At              time.Time `json:"at"`
	DurationMinutes *int      `json:"duration_minutes,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func snapshotFromRoster(r attendance.Roster) SnapshotPayload {
	return SnapshotPayload{
		Date:      r.Date,
		SignedIn:  entries(r.SignedIn),
		SignedOut: entries(r.SignedOut),
		Counts: Counts{
			SignedIn:  r.Counts.SignedIn,
			SignedOut: r.Counts.SignedOut,
			Total:     r.Counts.Total,
		},
	}
}

func entries(rs []attendance.Record) []Entry {
	out := make([]Entry, 0, len(rs))
	for _, r := range rs {
		e := Entry{
			RecordID:        r.ID,
			UserID:          r.UserID,
			CheckedInAt:     r.CheckedInAt,
			CheckedOutAt:    r.CheckedOutAt,
			DurationMinutes: r.DurationMinutes,
		}
		if p := r.Person; p != nil {
			e.Username, e.Name, e.Surname, e.Role = p.Username, p.Name, p.Surname, string(p.Role)
		}
		out = append(out, e)
	}
	return out
}

func newEnvelope(typ string, payload any, ts time.Time) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{V: Version, Type: typ, ID: newID(), TS: ts.UTC(), Payload: b}, nil
}
