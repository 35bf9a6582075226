package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Message is a templated transactional email. The template lives at the
// mail provider and is referenced by alias; Variables fill its fields.
type Message struct {
	To          string
	Bcc         string
	TemplateRef string
	Variables   map[string]string
}

// Mailer sends templated transactional emails.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New returns a mailer for the configured provider. Anything other than
// "postmark" falls back to logging.
func New(provider, serverToken, from string) Mailer {
	switch provider {
	case "postmark":
		return NewPostmarkSender(serverToken, from)
	default:
		return NewLogSender()
	}
}

// PostmarkSender sends templated emails via the Postmark HTTP API.
type PostmarkSender struct {
	serverToken string
	from        string
	httpClient  *http.Client
}

func NewPostmarkSender(serverToken, from string) *PostmarkSender {
	return &PostmarkSender{
		serverToken: serverToken,
		from:        from,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type postmarkTemplateRequest struct {
	From          string            `json:"From"`
	To            string            `json:"To"`
	Bcc           string            `json:"Bcc,omitempty"`
	TemplateAlias string            `json:"TemplateAlias"`
	TemplateModel map[string]string `json:"TemplateModel"`
}

type postmarkResponse struct {
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
}

func (p *PostmarkSender) Send(ctx context.Context, msg Message) error {
	payload := postmarkTemplateRequest{
		From:          p.from,
		To:            msg.To,
		Bcc:           msg.Bcc,
		TemplateAlias: msg.TemplateRef,
		TemplateModel: msg.Variables,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal postmark request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.postmarkapp.com/email/withTemplate", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create postmark request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", p.serverToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("postmark request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		var pmResp postmarkResponse
		_ = json.Unmarshal(respBody, &pmResp)
		return fmt.Errorf("postmark error (HTTP %d): code=%d message=%s", resp.StatusCode, pmResp.ErrorCode, pmResp.Message)
	}

	return nil
}

// LogSender logs emails instead of sending them. Used when no mail
// provider is configured.
type LogSender struct{}

func NewLogSender() *LogSender {
	return &LogSender{}
}

func (l *LogSender) Send(_ context.Context, msg Message) error {
	log.Info().
		Str("to", msg.To).
		Str("template", msg.TemplateRef).
		Interface("variables", msg.Variables).
		Msg("Email (log sender)")
	return nil
}
