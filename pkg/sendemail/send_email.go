package sendemail

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"starnotary/pkg/config"
)

const (
	defaultHost  = "https://api.sendgrid.com"
	mailEndpoint = "/v3/mail/send"
)

type EmailService interface {
	SendEmail(ctx context.Context, subject, toEmail, plainTextContent, htmlContent string) error
}

type emailService struct {
	apiKey      string
	host        string
	senderEmail string
	senderName  string
}

// NewEmailService returns a SendGrid sender. Without an API key every send is
// logged and dropped so local runs need no credentials.
func NewEmailService(cfg config.SendGridConfig, logger *zap.Logger) EmailService {
	if cfg.APIKey == "" {
		if logger == nil {
			logger = zap.NewNop()
		}
		return &discardService{logger: logger.Named("sendemail")}
	}
	return newEmailService(cfg, defaultHost)
}

func newEmailService(cfg config.SendGridConfig, host string) *emailService {
	return &emailService{
		apiKey:      cfg.APIKey,
		host:        host,
		senderEmail: cfg.SenderEmail,
		senderName:  cfg.SenderName,
	}
}

func (e *emailService) SendEmail(ctx context.Context, subject, toEmail, plainTextContent, htmlContent string) error {
	from := mail.NewEmail(e.senderName, e.senderEmail)
	to := mail.NewEmail("", toEmail)
	message := mail.NewSingleEmail(from, subject, to, plainTextContent, htmlContent)

	request := sendgrid.GetRequest(e.apiKey, mailEndpoint, e.host)
	request.Method = http.MethodPost
	request.Body = mail.GetRequestBody(message)

	response, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return err
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("failed to send email: status %d", response.StatusCode)
	}
	return nil
}

type discardService struct {
	logger *zap.Logger
}

func (d *discardService) SendEmail(ctx context.Context, subject, toEmail, plainTextContent, htmlContent string) error {
	d.logger.Debug("email not sent, SENDGRID_API_KEY unset",
		zap.String("to", toEmail),
		zap.String("subject", subject))
	return nil
}
