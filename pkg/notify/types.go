package notify

import "starnotary/pkg/stars"

// EventMessage is the frame pushed to feed subscribers for every ledger
// event they are a party to.
type EventMessage struct {
	EventType string      `json:"event_type"`
	Event     stars.Event `json:"event"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type statusResponse struct {
	OnlineAccounts []string `json:"online_accounts"`
	Count          int      `json:"count"`
}
