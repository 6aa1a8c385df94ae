package services

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"os"

	"dinepay/internal/models"
)

type EmailService struct {
	host     string
	port     string
	user     string
	password string
	from     string
	baseURL  string
}

func NewEmailService() *EmailService {
	return &EmailService{
		host:     os.Getenv("SMTP_HOST"),
		port:     os.Getenv("SMTP_PORT"),
		user:     os.Getenv("SMTP_USER"),
		password: os.Getenv("SMTP_PASS"),
		from:     os.Getenv("EMAIL_FROM"),
		baseURL:  os.Getenv("PUBLIC_BASE_URL"),
	}
}

func (s *EmailService) SendEmail(to []string, subject, body string) error {
	if s.host == "" || s.port == "" || s.user == "" || s.password == "" {
		return fmt.Errorf("SMTP credentials not fully configured")
	}

	auth := smtp.PlainAuth("", s.user, s.password, s.host)

	// Build the message
	message := []byte(fmt.Sprintf("To: %s\r\n"+
		"Subject: %s\r\n"+
		"\r\n"+
		"%s\r\n", to[0], subject, body))

	addr := fmt.Sprintf("%s:%s", s.host, s.port)

	err := smtp.SendMail(addr, auth, s.from, to, message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

// QueueSplitInvitation sends a participant their personal payment link.
// Failures are logged, never fatal; the invitation reminder sweep retries
// unanswered invitations later.
func (s *EmailService) QueueSplitInvitation(_ context.Context, split *models.BillSplit, participant *models.SplitParticipant) {
	subject := fmt.Sprintf("%s invited you to split a bill", split.OrganizerName)
	body := fmt.Sprintf(
		"Hi %s,\n\n%s split the bill for order and your share is %s %s.\n\nView and pay your share: %s/p/%s\n",
		participant.Name, split.OrganizerName, split.Currency, participant.TotalAmount.StringFixed(2),
		s.baseURL, participant.AccessToken,
	)
	if err := s.SendEmail([]string{participant.Email}, subject, body); err != nil {
		log.Printf("split %d: invitation email to %s failed: %v", split.ID, participant.Email, err)
	}
}

// SendSplitReminder nudges a participant who has not settled their share.
// Unlike the initial invitation, send failures surface to the caller so the
// reminder task can reschedule.
func (s *EmailService) SendSplitReminder(_ context.Context, split *models.BillSplit, participant *models.SplitParticipant) error {
	remaining := participant.TotalAmount.Sub(participant.PaidAmount)
	subject := fmt.Sprintf("Reminder: your share of %s's bill", split.OrganizerName)
	body := fmt.Sprintf(
		"Hi %s,\n\nYou still owe %s %s on the bill %s split with you.\n\nPay your share: %s/p/%s\n",
		participant.Name, split.Currency, remaining.StringFixed(2), split.OrganizerName,
		s.baseURL, participant.AccessToken,
	)
	return s.SendEmail([]string{participant.Email}, subject, body)
}

// SendRefundRequestNotice tells the requester what happened to their refund
// request.
func (s *EmailService) SendRefundRequestNotice(email string, request *models.RefundRequest) {
	if email == "" {
		return
	}
	subject := fmt.Sprintf("Refund request #%d: %s", request.ID, request.Status)
	body := fmt.Sprintf(
		"Your refund request for %s has been %s.\n",
		request.RequestedAmount.StringFixed(2), request.Status,
	)
	if err := s.SendEmail([]string{email}, subject, body); err != nil {
		log.Printf("refund request %d: notice email failed: %v", request.ID, err)
	}
}
