package stream

import (
	"encoding/json"
	"fmt"

	"github.com/technosupport/ts-dispatch/internal/alerts"
)

// envelope is the inbound push-channel message shape:
// {"type":"new_alert","alert":{...}} or {"type":"update_alert","alert":{...}}
type envelope struct {
	Type  string          `json:"type"`
	Alert json.RawMessage `json:"alert"`
}

// DecodeEnvelope parses a raw push-channel payload into a typed domain
// event. Unknown message types and malformed bodies return an error so the
// caller can drop them without tearing the channel down.
func DecodeEnvelope(raw []byte) (alerts.Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return alerts.Event{}, fmt.Errorf("unparsable payload: %w", err)
	}

	var kind alerts.EventKind
	switch env.Type {
	case "new_alert":
		kind = alerts.EventCreated
	case "update_alert":
		kind = alerts.EventUpdated
	default:
		return alerts.Event{}, fmt.Errorf("unknown message type %q", env.Type)
	}

	var a alerts.Alert
	if err := json.Unmarshal(env.Alert, &a); err != nil {
		return alerts.Event{}, fmt.Errorf("unparsable alert body: %w", err)
	}
	if a.ID == "" {
		return alerts.Event{}, fmt.Errorf("alert without id")
	}
	if a.Status == "" {
		a.Status = alerts.StatusNew
	}
	if a.Media.SnapshotURL == "" {
		a.Media.SnapshotURL = alerts.PlaceholderSnapshotURL
	}
	return alerts.Event{Kind: kind, Alert: a}, nil
}
