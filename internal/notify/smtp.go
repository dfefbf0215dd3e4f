package notify

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"text/template"
	"time"

	"rent-reconciliation-service/internal/models"
	"rent-reconciliation-service/internal/summary"
	"rent-reconciliation-service/pkg/errors"
	"rent-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// SMTPConfig holds the mail relay settings.
type SMTPConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// Validate checks the relay settings
func (c *SMTPConfig) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "notify.smtp.host", c.Host, nil)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "notify.smtp.port", c.Port, nil)
	}
	if strings.TrimSpace(c.From) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "notify.smtp.from", c.From, nil)
	}
	if len(c.To) == 0 {
		return errors.ConfigurationError(errors.CodeMissingConfig, "notify.smtp.to", c.To, nil)
	}
	return nil
}

// Addr is host:port.
func (c *SMTPConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier renders a plain-text summary and sends it through a relay.
type SMTPNotifier struct {
	config *SMTPConfig
	send   sendFunc
	now    func() time.Time
	logger logger.Logger
}

// NewSMTPNotifier validates cfg and returns a notifier that uses smtp.SendMail.
func NewSMTPNotifier(cfg *SMTPConfig, log logger.Logger) (*SMTPNotifier, error) {
	if cfg == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "notify.smtp", nil, nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SMTPNotifier{
		config: cfg,
		send:   smtp.SendMail,
		now:    time.Now,
		logger: logger.OrGlobal(log).WithComponent("notify"),
	}, nil
}

// Notify renders msg and sends it to every configured recipient.
func (n *SMTPNotifier) Notify(ctx context.Context, msg *Message) error {
	recipients := strings.Join(n.config.To, ", ")
	if err := ctx.Err(); err != nil {
		return errors.NotificationError(errors.CodeDeliveryFailed, recipients, err)
	}

	body, err := Render(msg)
	if err != nil {
		return errors.NotificationError(errors.CodeDeliveryFailed, recipients, err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", n.config.From)
	fmt.Fprintf(&buf, "To: %s\r\n", recipients)
	fmt.Fprintf(&buf, "Subject: Rent reconciliation %s\r\n", msg.Month)
	fmt.Fprintf(&buf, "Date: %s\r\n", n.now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	buf.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))

	var auth smtp.Auth
	if n.config.Username != "" {
		auth = smtp.PlainAuth("", n.config.Username, n.config.Password, n.config.Host)
	}

	if err := n.send(n.config.Addr(), auth, n.config.From, n.config.To, buf.Bytes()); err != nil {
		return errors.NotificationError(errors.CodeDeliveryFailed, recipients, err)
	}

	n.logger.WithFields(logger.Fields{
		"run_id":     msg.RunID,
		"month":      msg.Month.String(),
		"recipients": len(n.config.To),
	}).Info("Sent reconciliation summary")
	return nil
}

var bodyTemplate = template.Must(template.New("summary").Funcs(template.FuncMap{
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
	"date":  func(t time.Time) string { return t.Format("01/02/2006") },
}).Parse(`Rent reconciliation for {{.Month}} (run {{.RunID}})

Properties: {{.Summary.PropertyCount}}  matched: {{.Matched}}  discrepancy: {{.Discrepancy}}  missing: {{.Missing}}
Rent verified:     {{.Summary.Rent.Verified}}/{{.Summary.Rent.Total}} ({{money .Summary.Rent.Percentage}}%)  actual {{money .Summary.Rent.Actual}} / target {{money .Summary.Rent.Target}}
HOA verified:      {{.Summary.HOA.Verified}}/{{.Summary.HOA.Total}} ({{money .Summary.HOA.Percentage}}%)  actual {{money .Summary.HOA.Actual}} / target {{money .Summary.HOA.Target}}
Mortgage verified: {{.Summary.Mortgage.Verified}}/{{.Summary.Mortgage.Total}} ({{money .Summary.Mortgage.Percentage}}%)  actual {{money .Summary.Mortgage.Actual}} / target {{money .Summary.Mortgage.Target}}

Properties
{{range .ReconLogs}}- {{.Address}} ({{.PropertyManagementName}}): {{.Status}}  rent {{money .ActualRent}}/{{money .TargetRent}}  hoa {{money .ActualHOA}}/{{money .TargetHOA}}  mortgage {{money .ActualMortgage}}/{{money .TargetMortgage}}
{{else}}- none
{{end}}
{{if .Managers}}Managers
{{range .Managers}}- {{.PropertyManagementName}}: statement {{money .StatementTotal}}  bank {{money .BankTotal}}  difference {{money .Difference}}  {{.Status}}
{{end}}
{{end}}Miscellaneous expenses
{{range .MiscLogs}}- {{date .DateCleared}} {{.Description}} {{money .Amount}} ({{.CategorySuggestion}})
{{else}}- none
{{end}}`))

// Render produces the plain-text body for msg.
func Render(msg *Message) (string, error) {
	var buf bytes.Buffer
	s := summary.Summarize(msg.ReconLogs)
	data := struct {
		*Message
		Summary     summary.Summary
		Matched     int
		Discrepancy int
		Missing     int
	}{
		Message:     msg,
		Summary:     s,
		Matched:     s.StatusCounts[models.StatusMatched],
		Discrepancy: s.StatusCounts[models.StatusDiscrepancy],
		Missing:     s.StatusCounts[models.StatusMissing],
	}

	if err := bodyTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
