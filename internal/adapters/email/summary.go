package email

import "context"

// SummaryMailer adapts a Sender to the single-recipient summary send the
// workout orchestrators need.
type SummaryMailer struct {
	sender Sender
}

// NewSummaryMailer wraps a Sender.
func NewSummaryMailer(sender Sender) *SummaryMailer {
	return &SummaryMailer{sender: sender}
}

// SendSummary delivers one workout summary email to the coach.
func (m *SummaryMailer) SendSummary(ctx context.Context, to, subject, html string) error {
	_, err := m.sender.Send(ctx, SendRequest{
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	})
	return err
}
