package app

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/html"

	"taravani/pkg/mail"
)

const brandName = "Taravani"

const (
	subjectConfirmation = "We've Received Your Reading Request - Taravani"
	subjectTest         = "Test Email from Taravani"
)

func reportSubject(name string) string {
	return "Your birth chart reading, " + name
}

func contactSubject(name string) string {
	return "New contact form message from " + name
}

// htmlText escapes s and turns newlines into <br>.
func htmlText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(html.EscapeString(s), "\n", "<br>")
}

func confirmationMessage(to, name string, paid bool) mail.Message {
	received := "We've successfully received your birth chart reading request."
	if paid {
		received = "We've successfully received your birth chart reading request and payment."
	}
	next := []string{
		"Your reading is being personally written by our astrologer",
		"You'll receive it within 48 hours",
		"Your details are stored securely for 30 days, then permanently deleted",
	}
	var b strings.Builder
	b.WriteString(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; color: #0a0e27;">`)
	fmt.Fprintf(&b, `<h1 style="font-family: serif; border-bottom: 2px solid #d4af37; padding-bottom: 10px;">Thank You, %s!</h1>`, html.EscapeString(name))
	fmt.Fprintf(&b, `<p>%s</p>`, html.EscapeString(received))
	b.WriteString(`<div style="background: #f8f9fa; padding: 20px; margin: 20px 0; border-left: 4px solid #6366f1;"><strong>Your personalized report will be delivered to this email address within 48 hours.</strong></div>`)
	b.WriteString(`<p>Our professional astrologer is now preparing your detailed, human-written birth chart reading based on the information you provided.</p>`)
	b.WriteString(`<p><strong>What happens next?</strong><br>`)
	for _, line := range next {
		fmt.Fprintf(&b, "&bull; %s<br>", html.EscapeString(line))
	}
	fmt.Fprintf(&b, `</p><p style="font-size: 12px; color: #8a8a9e;">If you have any questions, please don't hesitate to contact us.<br>Best regards,<br><strong>%s</strong></p></div>`, brandName)

	var t strings.Builder
	fmt.Fprintf(&t, "Thank You, %s!\n\n%s\n\n", name, received)
	t.WriteString("Your personalized report will be delivered to this email address within 48 hours.\n\n")
	t.WriteString("Our professional astrologer is now preparing your detailed, human-written birth chart reading based on the information you provided.\n\n")
	t.WriteString("What happens next?\n")
	for _, line := range next {
		fmt.Fprintf(&t, "- %s\n", line)
	}
	fmt.Fprintf(&t, "\nIf you have any questions, please don't hesitate to contact us.\n\nBest regards,\n%s\n", brandName)

	return mail.Message{To: []string{to}, Subject: subjectConfirmation, HTML: b.String(), Text: t.String()}
}

func reportMessage(to, name, report string) mail.Message {
	const retention = "We store your details for 30 days so we can resend this if needed, then they are permanently deleted."
	const closing = "This report was personally written by a professional astrologer. If you have any questions, please don't hesitate to contact us."

	var b strings.Builder
	b.WriteString(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; color: #1a1a2e;">`)
	b.WriteString(`<h1 style="font-family: serif; border-bottom: 2px solid #d4af37; padding-bottom: 10px;">Your Birth Chart Reading</h1>`)
	fmt.Fprintf(&b, `<p>Dear %s,</p>`, html.EscapeString(name))
	b.WriteString(`<p>Thank you for requesting your birth chart reading. Below is your personalised report, written specifically for you.</p>`)
	fmt.Fprintf(&b, `<div style="background: #fafafa; padding: 20px; margin: 20px 0; border-left: 4px solid #d4af37; line-height: 1.6;">%s</div>`, htmlText(report))
	fmt.Fprintf(&b, `<p style="font-size: 12px; color: #8a8a9e;">%s</p><p style="font-size: 12px; color: #8a8a9e;">%s</p><p style="font-size: 12px; color: #8a8a9e;">%s</p></div>`, retention, closing, brandName)

	text := fmt.Sprintf("Your Birth Chart Reading\n\nDear %s,\n\nThank you for requesting your birth chart reading. Below is your personalised report, written specifically for you.\n\n%s\n\n---\n%s\n\n%s\n\n%s\n",
		name, report, retention, closing, brandName)

	return mail.Message{To: []string{to}, Subject: reportSubject(name), HTML: b.String(), Text: text}
}

func contactMessage(to, name, from, message string) mail.Message {
	htmlBody := fmt.Sprintf(`<div style="font-family: Arial, sans-serif; line-height: 1.6;"><h2>New message from %s</h2><p><strong>Email:</strong> %s</p><p><strong>Message:</strong></p><p>%s</p></div>`,
		html.EscapeString(name), html.EscapeString(from), htmlText(message))
	return mail.Message{
		To:      []string{to},
		ReplyTo: from,
		Subject: contactSubject(name),
		HTML:    htmlBody,
		Text:    fmt.Sprintf("New message from %s (%s)\n\n%s", name, from, message),
	}
}

func testMessage(to string, now time.Time) mail.Message {
	sentAt := now.Format(time.RFC1123)
	return mail.Message{
		To:      []string{to},
		Subject: subjectTest,
		HTML: fmt.Sprintf(`<div style="font-family: Arial, sans-serif; padding: 20px;"><h2>Test Email</h2><p>This is a test email from your %s application.</p><p>If you received this, your email configuration is working correctly!</p><p><strong>Sent at:</strong> %s</p></div>`,
			brandName, html.EscapeString(sentAt)),
		Text: fmt.Sprintf("This is a test email from your %s application. If you received this, your email configuration is working correctly!\n\nSent at: %s", brandName, sentAt),
	}
}
