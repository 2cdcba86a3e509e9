package email

import (
	"context"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"
)

// NotifierConfig holds the link targets embedded in outbound messages.
type NotifierConfig struct {
	// ResetURL receives the password reset token as a ?token= parameter.
	ResetURL string `env:"NOTIFIER_RESET_URL,required"`
	// ConfirmURL receives the email confirmation token as a path suffix.
	ConfirmURL string `env:"NOTIFIER_CONFIRM_URL,required"`
	// ProductName appears in subjects and bodies.
	ProductName string `env:"NOTIFIER_PRODUCT_NAME" envDefault:"authkit"`
}

// Notifier renders and delivers credential-flow emails over any EmailSender.
type Notifier struct {
	sender EmailSender
	config NotifierConfig
}

// NewNotifier creates a notifier delivering through the given sender.
func NewNotifier(sender EmailSender, cfg NotifierConfig) *Notifier {
	return &Notifier{sender: sender, config: cfg}
}

var resetTmpl = template.Must(template.New("reset").Parse(`<html><body>
<p>We received a request to reset your {{.Product}} password.</p>
<p><a href="{{.Link}}">Reset your password</a></p>
<p>The link expires at {{.Expires}}. If you did not request this, you can ignore this message.</p>
</body></html>`))

var confirmTmpl = template.Must(template.New("confirm").Parse(`<html><body>
<p>Please confirm this email address for your {{.Product}} account.</p>
<p><a href="{{.Link}}">Confirm email</a></p>
<p>The link expires at {{.Expires}}.</p>
</body></html>`))

// SendResetEmail delivers a password reset link carrying the given token.
func (n *Notifier) SendResetEmail(ctx context.Context, to, token string, expiresAt time.Time) error {
	link := n.config.ResetURL + "?token=" + url.QueryEscape(token)

	body, err := render(resetTmpl, n.config.ProductName, link, expiresAt)
	if err != nil {
		return err
	}

	return n.sender.SendEmail(ctx, SendEmailParams{
		SendTo:   to,
		Subject:  fmt.Sprintf("Reset your %s password", n.config.ProductName),
		BodyHTML: body,
		Tag:      "password-reset",
	})
}

// SendConfirmationEmail delivers an email confirmation link carrying the
// given token.
func (n *Notifier) SendConfirmationEmail(ctx context.Context, to, token string, expiresAt time.Time) error {
	link := strings.TrimSuffix(n.config.ConfirmURL, "/") + "/" + url.PathEscape(token)

	body, err := render(confirmTmpl, n.config.ProductName, link, expiresAt)
	if err != nil {
		return err
	}

	return n.sender.SendEmail(ctx, SendEmailParams{
		SendTo:   to,
		Subject:  fmt.Sprintf("Confirm your %s email", n.config.ProductName),
		BodyHTML: body,
		Tag:      "email-confirmation",
	})
}

func render(tmpl *template.Template, product, link string, expiresAt time.Time) (string, error) {
	var sb strings.Builder
	err := tmpl.Execute(&sb, map[string]string{
		"Product": product,
		"Link":    link,
		"Expires": expiresAt.UTC().Format(time.RFC1123),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render email template: %w", err)
	}
	return sb.String(), nil
}
