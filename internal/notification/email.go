package notification

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/clinic-api/internal/readmodel"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

// EmailConfig holds SMTP settings.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// PatientDomain is appended to patient ids to form recipient addresses
	// until a proper patient directory exists.
	PatientDomain string
}

// EmailNotifier sends appointment notifications over SMTP.
type EmailNotifier struct {
	dialer  *gomail.Dialer
	from    string
	domain  string
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewEmailNotifier(cfg EmailConfig, lg *logger.Logger, m *metrics.Metrics) *EmailNotifier {
	return &EmailNotifier{
		dialer:  gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:    cfg.From,
		domain:  cfg.PatientDomain,
		logger:  lg,
		metrics: m,
	}
}

func (n *EmailNotifier) AppointmentCancelled(ctx context.Context, row readmodel.AppointmentRow) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", n.from)
	msg.SetHeader("To", fmt.Sprintf("%s@%s", row.PatientID, n.domain))
	msg.SetHeader("Subject", "Your appointment has been cancelled")
	msg.SetBody("text/plain", fmt.Sprintf(
		"Your appointment with doctor %s on %s at %s has been cancelled.\n"+
			"Please contact the clinic to rebook.", row.DoctorID, row.Date, row.Time))

	if err := n.dialer.DialAndSend(msg); err != nil {
		n.metrics.NotificationsSent.WithLabelValues("error").Inc()
		n.logger.Error(err, "failed to send cancellation email", "appointment_id", row.ID)
		return err
	}
	n.metrics.NotificationsSent.WithLabelValues("success").Inc()
	return nil
}
