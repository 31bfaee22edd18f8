package email

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/Domenick1991/flightbooking/config"
	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/sirupsen/logrus"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Sender delivers notifications by mail. Without an SMTP host it only logs
// them.
type Sender struct {
	cfg  config.SMTPConfig
	log  logrus.FieldLogger
	send sendFunc
}

func NewSender(cfg config.SMTPConfig, log logrus.FieldLogger) *Sender {
	return &Sender{cfg: cfg, log: log, send: smtp.SendMail}
}

func (s *Sender) Send(ctx context.Context, n domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.Recipient == "" {
		return fmt.Errorf("notification %s has no recipient", n.ID)
	}
	if strings.ContainsAny(n.Recipient+n.Subject, "\r\n") {
		return fmt.Errorf("notification %s has a line break in a mail header", n.ID)
	}

	log := s.log.WithFields(logrus.Fields{
		"booking_id": n.BookingID,
		"recipient":  n.Recipient,
		"subject":    n.Subject,
	})
	if s.cfg.Host == "" {
		log.Info("smtp disabled, notification logged only")
		return nil
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	if err := s.send(addr, auth, s.cfg.From, []string{n.Recipient}, buildMessage(s.cfg.From, n)); err != nil {
		return fmt.Errorf("send mail to %s: %w", n.Recipient, err)
	}
	log.Info("mail sent")
	return nil
}

func buildMessage(from string, n domain.Notification) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + n.Recipient + "\r\n")
	b.WriteString("Subject: " + n.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(n.Text)
	b.WriteString("\r\n")
	return []byte(b.String())
}
