// Package alert provides the outbound notification channel used by trading
// workers for status updates and termination alerts, plus the worker-side
// throttle that rate-limits them.
package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Sink delivers one notification. Implementations do not rate-limit; the
// worker owns that policy through Throttle.
type Sink interface {
	Send(from, to, subject, body string) error
}

// ---------------------------------------------------------------------------
// SendGrid sink
// ---------------------------------------------------------------------------

const sendgridURL = "https://api.sendgrid.com/v3/mail/send"

// Compile-time interface check.
var _ Sink = (*SendGridSink)(nil)

// SendGridSink delivers alerts as e-mail through the SendGrid v3 mail API.
type SendGridSink struct {
	apiKey string
	url    string
	client *http.Client
}

// NewSendGridSink creates a sink using the given SendGrid API key.
func NewSendGridSink(apiKey string) *SendGridSink {
	return &SendGridSink{
		apiKey: apiKey,
		url:    sendgridURL,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type sgMail struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
}

type sgPersonalization struct {
	To []sgAddress `json:"to"`
}

type sgAddress struct {
	Email string `json:"email"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Send posts one e-mail. Any non-2xx response is an error.
func (s *SendGridSink) Send(from, to, subject, body string) error {
	payload := sgMail{
		Personalizations: []sgPersonalization{{To: []sgAddress{{Email: to}}}},
		From:             sgAddress{Email: from},
		Subject:          subject,
		Content:          []sgContent{{Type: "text/html", Value: fmt.Sprintf("<p>%s</p>", body)}},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding mail: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending mail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}
	return nil
}
