package notify

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/go-resty/resty/v2"

	"confdb/internal/config"
	"confdb/internal/core"
)

// EmailNotifier delivers project lifecycle notifications over SMTP. Every
// recipient gets their own copy so nobody sees who else was notified.
// Sending happens in the background: a delivery failure is logged, never
// surfaced to the caller.
type EmailNotifier struct {
	cfg    config.NotifierConfig
	logger core.Logger
	client *resty.Client
}

var _ core.Notifier = (*EmailNotifier)(nil)

// NewEmailNotifier validates the email settings and builds the notifier.
func NewEmailNotifier(cfg config.NotifierConfig, logger core.Logger) (*EmailNotifier, error) {
	if cfg.EmailServer == "" {
		return nil, fmt.Errorf("email server should not be empty")
	}
	if cfg.EmailFromUser == "" {
		return nil, fmt.Errorf("email from user should not be empty")
	}
	return &EmailNotifier{
		cfg:    cfg,
		logger: logger,
		client: resty.New(),
	}, nil
}

// ValidateIdentity checks a username or email against the account service.
// Without a configured account service every identity is accepted.
func (n *EmailNotifier) ValidateIdentity(usernameOrEmail string) bool {
	if n.cfg.AccountServiceURL == "" {
		return true
	}
	username := usernameOrEmail
	if at := strings.IndexByte(username, '@'); at >= 0 {
		username = username[:at]
	}
	_, err := n.resolveEmail(username)
	return err == nil
}

func (n *EmailNotifier) ProjectSubmitted(editors []string, projectName, projectID string) {
	n.send(editors, fmt.Sprintf("Project %s was submitted for approval", projectName),
		fmt.Sprintf("<p>The project <a href='%s'>%s</a> was submitted for approval.</p>", n.projectURL(projectID), projectName))
}

func (n *EmailNotifier) ApproversAdded(approvers []string, projectName, projectID string) {
	n.send(approvers, fmt.Sprintf("You were selected as an approver for the project %s", projectName),
		fmt.Sprintf("<p>You were selected as an approver for the project <a href='%s'>%s</a>. Please approve or decline project changes.</p>", n.projectURL(projectID), projectName))
}

func (n *EmailNotifier) SuperApproversAdded(approvers []string, projectName, projectID string) {
	n.send(approvers, fmt.Sprintf("The project %s was submitted for your approval", projectName),
		fmt.Sprintf("<p>The project <a href='%s'>%s</a> was submitted and awaits your approval as a super approver.</p>", n.projectURL(projectID), projectName))
}

func (n *EmailNotifier) ApproversRemoved(approvers []string, projectName, projectID string) {
	n.send(approvers, fmt.Sprintf("You are no longer an approver of the project %s", projectName),
		fmt.Sprintf("<p>You were removed from the approvers of the project <a href='%s'>%s</a>.</p>", n.projectURL(projectID), projectName))
}

func (n *EmailNotifier) ApproverListChanged(editors []string, projectName, projectID string, approvers []string) {
	n.send(editors, fmt.Sprintf("The approvers of the project %s have changed", projectName),
		fmt.Sprintf("<p>The approvers of the project <a href='%s'>%s</a> are now: %s.</p>", n.projectURL(projectID), projectName, strings.Join(approvers, ", ")))
}

func (n *EmailNotifier) EditorsAdded(editors []string, projectName, projectID string) {
	n.send(editors, fmt.Sprintf("You were selected as an editor of the project %s", projectName),
		fmt.Sprintf("<p>You were selected as an editor of the project <a href='%s'>%s</a>.</p>", n.projectURL(projectID), projectName))
}

func (n *EmailNotifier) EditorsRemoved(editors []string, projectName, projectID string) {
	n.send(editors, fmt.Sprintf("You are no longer an editor of the project %s", projectName),
		fmt.Sprintf("<p>You were removed from the editors of the project <a href='%s'>%s</a>.</p>", n.projectURL(projectID), projectName))
}

func (n *EmailNotifier) ProjectApproved(users []string, projectName, projectID string) {
	n.send(users, fmt.Sprintf("The project %s was approved", projectName),
		fmt.Sprintf("<p>The project <a href='%s'>%s</a> was approved and merged into the machine configuration baseline.</p>", n.projectURL(projectID), projectName))
}

func (n *EmailNotifier) ProjectRejected(users []string, projectName, projectID string, rejectedBy, reason string) {
	n.send(users, fmt.Sprintf("The project %s was rejected", projectName),
		fmt.Sprintf("<p>The project <a href='%s'>%s</a> was rejected by %s:</p><p>%s</p>", n.projectURL(projectID), projectName, rejectedBy, reason))
}

func (n *EmailNotifier) projectURL(projectID string) string {
	return strings.TrimRight(n.cfg.ServiceURL, "/") + "/projects/" + projectID
}

// send delivers the message to every recipient as a separate email, in the
// background.
func (n *EmailNotifier) send(users []string, subject, htmlBody string) {
	if len(users) == 0 {
		return
	}
	users = append([]string(nil), users...)
	go func() {
		emails := n.resolveEmails(users)
		for _, to := range emails {
			if err := n.sendOne(to, subject, htmlBody); err != nil {
				n.logger.Error("failed to send email", "to", to, "subject", subject, "error", err)
			}
		}
	}()
}

// resolveEmails turns usernames into email addresses using the account
// service; addresses pass through unchanged. A name that can't be resolved
// is dropped with a log entry, it must not block the other recipients.
func (n *EmailNotifier) resolveEmails(users []string) []string {
	var out []string
	for _, user := range users {
		if strings.Contains(user, "@") {
			out = append(out, user)
			continue
		}
		email, err := n.resolveEmail(user)
		if err != nil {
			n.logger.Error("failed to resolve an email", "user", user, "error", err)
			continue
		}
		out = append(out, email)
	}
	return out
}

func (n *EmailNotifier) resolveEmail(username string) (string, error) {
	if n.cfg.AccountServiceURL == "" {
		return "", fmt.Errorf("no account service configured")
	}
	var body struct {
		Email string `json:"email"`
	}
	resp, err := n.client.R().
		SetQueryParam("unixAcct", username).
		SetResult(&body).
		Get(n.cfg.AccountServiceURL)
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode())
	}
	if !strings.Contains(body.Email, "@") {
		return "", fmt.Errorf("user '%s' does not have a valid email account: '%s'", username, body.Email)
	}
	return body.Email, nil
}

func (n *EmailNotifier) sendOne(to, subject, htmlBody string) error {
	msg := strings.Join([]string{
		"From: " + n.cfg.EmailFromUser,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=\"UTF-8\"",
		"",
		htmlBody,
	}, "\r\n")

	host, _, err := net.SplitHostPort(n.cfg.EmailServer)
	if err != nil {
		return fmt.Errorf("invalid email server address %s: %w", n.cfg.EmailServer, err)
	}

	client, err := n.connect(host)
	if err != nil {
		return err
	}
	defer client.Close()

	if n.cfg.EmailUsername != "" {
		auth := smtp.PlainAuth("", n.cfg.EmailUsername, n.cfg.EmailPassword, host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(n.cfg.EmailFromUser); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

// connect establishes the SMTP session, either over implicit TLS or with
// an explicit STARTTLS upgrade.
func (n *EmailNotifier) connect(host string) (*smtp.Client, error) {
	if n.cfg.EmailUseSSL {
		conn, err := tls.Dial("tcp", n.cfg.EmailServer, &tls.Config{ServerName: host})
		if err != nil {
			return nil, fmt.Errorf("tls dial %s: %w", n.cfg.EmailServer, err)
		}
		client, err := smtp.NewClient(conn, host)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return client, nil
	}

	client, err := smtp.Dial(n.cfg.EmailServer)
	if err != nil {
		return nil, fmt.Errorf("smtp dial %s: %w", n.cfg.EmailServer, err)
	}
	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
			client.Close()
			return nil, fmt.Errorf("starttls: %w", err)
		}
	}
	return client, nil
}
