package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"starnotary/pkg/accounts"
	"starnotary/pkg/sendemail"
	"starnotary/pkg/stars"
)

const emailTimeout = 10 * time.Second

// AccountLookup resolves the e-mail address of a seller.
type AccountLookup interface {
	GetAccount(ctx context.Context, uuid string) (accounts.Account, error)
}

// Dispatcher fans committed ledger events out to the feed hub and mails
// sellers when their star is bought. Mail goes out in the background; Wait
// blocks until it has all been sent.
type Dispatcher struct {
	hub      *Hub
	accounts AccountLookup
	email    sendemail.EmailService
	logger   *zap.Logger

	mail sync.WaitGroup
}

// NewDispatcher builds a stars.Notifier. lookup and email may be nil, in
// which case no mail is sent.
func NewDispatcher(hub *Hub, lookup AccountLookup, email sendemail.EmailService, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		hub:      hub,
		accounts: lookup,
		email:    email,
		logger:   logger.Named("notify"),
	}
}

var _ stars.Notifier = (*Dispatcher)(nil)

func (d *Dispatcher) Publish(ctx context.Context, events []stars.Event) {
	for _, e := range events {
		msg := EventMessage{EventType: "star_" + string(e.Kind), Event: e}
		for _, party := range parties(e) {
			if !d.hub.IsOnline(party) {
				continue
			}
			if err := d.hub.SendTo(party, msg); err != nil {
				d.logger.Warn("event not delivered",
					zap.String("account", party),
					zap.Int64("star_id", e.StarID),
					zap.Error(err))
			}
		}

		if e.Kind == stars.EventSold && d.accounts != nil && d.email != nil {
			// outlives the request
			mailCtx := context.WithoutCancel(ctx)
			d.mail.Add(1)
			go func() {
				defer d.mail.Done()
				d.mailSeller(mailCtx, e)
			}()
		}
	}
}

// Wait blocks until every sale e-mail started by Publish has finished.
func (d *Dispatcher) Wait() {
	d.mail.Wait()
}

func (d *Dispatcher) mailSeller(ctx context.Context, e stars.Event) {
	ctx, cancel := context.WithTimeout(ctx, emailTimeout)
	defer cancel()

	seller, err := d.accounts.GetAccount(ctx, e.From)
	if err != nil {
		if !errors.Is(err, accounts.ErrAccountNotFound) {
			d.logger.Warn("seller lookup failed", zap.String("account", e.From), zap.Error(err))
		}
		return
	}

	subject, plain, html := saleNotice(seller, e)
	if err := d.email.SendEmail(ctx, subject, seller.Email, plain, html); err != nil {
		d.logger.Warn("sale e-mail failed",
			zap.String("account", seller.UUID),
			zap.Int64("star_id", e.StarID),
			zap.Error(err))
	}
}

func saleNotice(seller accounts.Account, e stars.Event) (subject, plain, html string) {
	subject = fmt.Sprintf("Star #%d sold", e.StarID)
	plain = fmt.Sprintf("Hi %s,\n\nyour star #%d was bought by %s for %s. The amount has been added to your balance.\n",
		seller.Name, e.StarID, e.To, e.Amount.String())
	html = fmt.Sprintf("<p>Hi %s,</p><p>your star <strong>#%d</strong> was bought by %s for <strong>%s</strong>. The amount has been added to your balance.</p>",
		seller.Name, e.StarID, e.To, e.Amount.String())
	return subject, plain, html
}

// parties lists the distinct non-empty accounts involved in e.
func parties(e stars.Event) []string {
	out := make([]string, 0, 2)
	if e.From != "" {
		out = append(out, e.From)
	}
	if e.To != "" && e.To != e.From {
		out = append(out, e.To)
	}
	return out
}
