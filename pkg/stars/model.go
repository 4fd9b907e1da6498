package stars

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Star struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Owner     string          `json:"owner"`
	ForSale   bool            `json:"for_sale"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"created_at"`
}

type StarList struct {
	Items []Star `json:"items"`
	Total int64  `json:"total"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
}

type StarFilters struct {
	Owner   *string
	ForSale *bool
}

type EventKind string

const (
	EventCreated     EventKind = "created"
	EventListed      EventKind = "listed"
	EventSold        EventKind = "sold"
	EventExchanged   EventKind = "exchanged"
	EventTransferred EventKind = "transferred"
)

// Event is one committed change to a star. Amount carries the price for
// listed and sold events and is zero otherwise.
type Event struct {
	ID            uuid.UUID       `json:"id"`
	StarID        int64           `json:"star_id"`
	RelatedStarID int64           `json:"related_star_id,omitempty"`
	Kind          EventKind       `json:"kind"`
	From          string          `json:"from,omitempty"`
	To            string          `json:"to,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Receipt describes a completed purchase. Only Price moves between the two
// balances; Refund is the part of Tendered that stayed with the buyer.
type Receipt struct {
	StarID   int64           `json:"star_id"`
	Seller   string          `json:"seller"`
	Buyer    string          `json:"buyer"`
	Price    decimal.Decimal `json:"price"`
	Tendered decimal.Decimal `json:"tendered"`
	Refund   decimal.Decimal `json:"refund"`
}
