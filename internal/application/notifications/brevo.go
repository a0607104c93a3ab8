package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"coursecert-backend/internal/application/certificates"

	"github.com/google/uuid"
)

const brevoAPI = "https://api.brevo.com/v3/smtp/email"

// BrevoSendRequest matches Brevo API v3 send transactional email body.
type BrevoSendRequest struct {
	Sender      BrevoSender `json:"sender"`
	To          []BrevoTo   `json:"to"`
	Subject     string      `json:"subject"`
	HTMLContent string      `json:"htmlContent"`
}

type BrevoSender struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type BrevoTo struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// UserLookup resolves the recipient of an e-mail.
type UserLookup interface {
	GetUser(ctx context.Context, userID uuid.UUID) (*certificates.UserInfo, error)
}

// BrevoNotifier e-mails notifications via the Brevo (Sendinblue) API. Empty APIKey = no-op.
type BrevoNotifier struct {
	APIKey       string
	MailFrom     string
	PlatformName string
	AppBaseURL   string // makes relative notification links absolute
	Users        UserLookup
	Endpoint     string // overrides brevoAPI in tests
	Client       *http.Client
}

func (b *BrevoNotifier) SendNotification(ctx context.Context, userID uuid.UUID, msg certificates.Notification) error {
	if b.APIKey == "" {
		return nil
	}
	user, err := b.Users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.Email == "" {
		return nil
	}
	html := EmailLayout(b.PlatformName, notificationContent(user.Name, msg, b.absolute(msg.Link)))
	return b.send(ctx, BrevoTo{Email: user.Email, Name: user.Name}, msg.Title, html)
}

func (b *BrevoNotifier) absolute(link string) string {
	if link == "" || strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	return strings.TrimRight(b.AppBaseURL, "/") + "/" + strings.TrimLeft(link, "/")
}

func (b *BrevoNotifier) send(ctx context.Context, to BrevoTo, subject, html string) error {
	body := BrevoSendRequest{
		Sender:      BrevoSender{Email: b.MailFrom, Name: b.PlatformName},
		To:          []BrevoTo{to},
		Subject:     subject,
		HTMLContent: html,
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return err
	}
	endpoint := b.Endpoint
	if endpoint == "" {
		endpoint = brevoAPI
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}
	req.Header.Set("api-key", b.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	client := b.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("brevo send failed: status %d", resp.StatusCode)
	}
	return nil
}

func notificationContent(name string, msg certificates.Notification, link string) string {
	if name == "" {
		name = "there"
	}
	button := ""
	if link != "" && msg.ActionText != "" {
		button = fmt.Sprintf(`
    <center>
      <a href="%s" class="cta-button">%s</a>
    </center>`, EscapeHTML(link), EscapeHTML(msg.ActionText))
	}
	return fmt.Sprintf(`
    <h1>%s</h1>
    <p>Hi %s,</p>
    <p>%s</p>%s
`, EscapeHTML(msg.Title), EscapeHTML(name), EscapeHTML(msg.Message), button)
}
