package email

import (
	"context"
	"fmt"
	"net/smtp"
	"os"

	"github.com/sakashimaa/go-fulfillment/internal/domain"
	"github.com/sakashimaa/go-fulfillment/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Sender interface {
	SendReceiptEmail(ctx context.Context, to string, receipt domain.PaymentReceiptEvent) error
}

type smtpSender struct {
	from     string
	password string
	host     string
	port     string
	logger   *zap.Logger
	tracer   trace.Tracer
}

func NewSMTPSender(logger *zap.Logger) Sender {
	return &smtpSender{
		from:     os.Getenv("SMTP_USER"),
		password: os.Getenv("SMTP_PASSWORD"),
		host:     os.Getenv("SMTP_HOST"),
		port:     os.Getenv("SMTP_PORT"),
		logger:   logger,
		tracer:   otel.Tracer("notification/email"),
	}
}

func (s *smtpSender) SendReceiptEmail(ctx context.Context, to string, receipt domain.PaymentReceiptEvent) error {
	ctx, span := s.tracer.Start(ctx, "smtp.SendReceiptEmail")
	defer span.End()

	span.SetAttributes(
		attribute.String("to.email", to),
		attribute.Int64("order_id", receipt.OrderID),
	)

	subject := "Subject: Your payment was received.\n"
	mime := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n"
	body := fmt.Sprintf(`
		<h1>Thanks for your order!</h1>
		<p>We received your payment of %d for order #%d.</p>
		<p>We will let you know as soon as it ships.</p>
	`, receipt.Amount, receipt.OrderID)

	msg := []byte(subject + mime + body)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	auth := smtp.PlainAuth("", s.from, s.password, s.host)

	mylogger.Info(
		ctx,
		s.logger,
		"Sending receipt email",
		zap.String("to", to),
		zap.Int64("order_id", receipt.OrderID),
	)

	if err := smtp.SendMail(addr, auth, s.from, []string{to}, msg); err != nil {
		span.RecordError(err)
		mylogger.Error(
			ctx,
			s.logger,
			"Error sending receipt email",
			zap.String("to", to),
			zap.Error(err),
		)

		return fmt.Errorf("failed to send mail: %v", err)
	}

	mylogger.Info(ctx, s.logger, "Receipt email sent successfully")
	return nil
}
