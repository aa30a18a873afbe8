package notify

import (
	"context"
	"coursepilot/internal/components/assert"
	"coursepilot/internal/components/telemetry"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("coursepilot.notify")

const report_email_sink_notify = "email-sink.notify"

type SmtpConfig struct {
	Server       string   `json:"server"`
	Port         int      `json:"port"`
	EmailAddress string   `json:"email_address"`
	Password     string   `json:"password"`
	To           []string `json:"to"`
	// IncludeInfo also mails info notifications, by default only success and error are sent.
	IncludeInfo bool `json:"include_info"`
}

// Enabled reports whether enough is configured to send mail.
func (c SmtpConfig) Enabled() bool {
	return c.Server != "" && c.EmailAddress != "" && len(c.To) > 0
}

func (c SmtpConfig) addr() string {
	port := c.Port
	if port == 0 {
		port = 587
	}
	return fmt.Sprintf("%s:%d", c.Server, port)
}

// EmailSink mails notifications over SMTP.
type EmailSink struct {
	config SmtpConfig
	tel    telemetry.API
	send   func(mail *email.Email) error
}

func NewEmailSink(config SmtpConfig, tel telemetry.API) EmailSink {
	assert.NotEmptyStr(config.Server)
	assert.NotEmptyStr(config.EmailAddress)
	assert.NotNil(tel)

	sink := EmailSink{
		config: config,
		tel:    telemetry.NewScopedAPI("notify", tel),
	}
	sink.send = sink.sendSmtp
	return sink
}

func (s EmailSink) sendSmtp(mail *email.Email) error {
	err := mail.Send(
		s.config.addr(),
		smtp.PlainAuth("", s.config.EmailAddress, s.config.Password, s.config.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		return mail.Send(s.config.addr(), nil)
	}
	return err
}

func (s EmailSink) Notify(ctx context.Context, title, message string, severity Severity) {
	if severity == SeverityInfo && !s.config.IncludeInfo {
		return
	}

	_, span := tracer.Start(ctx, "email-sink:Notify")
	defer span.End()

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("CoursePilot <%s>", s.config.EmailAddress)
	mail.To = s.config.To
	mail.Subject = fmt.Sprintf("[%s] %s", severity.String(), title)
	mail.Text = []byte(message)

	err := s.send(mail)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		s.tel.ReportWarning(report_email_sink_notify, err, title)
	}
}
