// Package email builds and sends the engine's outbound mail: council
// submissions with PDF attachments, applicant confirmations, and the
// operator alert channel.
package email

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"objection-engine/internal/common/aws"
	"objection-engine/internal/common/errors"
)

const serviceName = "email"

// Attachment is one file to attach to an outbound message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is one outbound email.
type Message struct {
	From        string
	To          string
	ReplyTo     string
	Subject     string
	Body        string
	IsHTML      bool
	Attachments []Attachment
}

// Sender sends a message and returns the transport's message id.
type Sender interface {
	Send(ctx context.Context, msg *Message) (string, error)
	Healthy(ctx context.Context) error
}

// SESSender sends through AWS SES using SendRawEmail so attachments can
// be carried as a multipart MIME body.
type SESSender struct {
	client *aws.SESClient
}

func NewSESSender(client *aws.SESClient) *SESSender {
	return &SESSender{client: client}
}

func (s *SESSender) Send(ctx context.Context, msg *Message) (string, error) {
	if err := validateMessage(msg); err != nil {
		return "", err
	}

	raw := buildMIME(msg)

	out, err := s.client.SendRawEmail(ctx, &ses.SendRawEmailInput{
		RawMessage:   &types.RawMessage{Data: raw},
		Source:       awssdk.String(msg.From),
		Destinations: []string{msg.To},
	})
	if err != nil {
		return "", errors.NewTransientError(serviceName, err)
	}
	return awssdk.ToString(out.MessageId), nil
}

func (s *SESSender) Healthy(ctx context.Context) error {
	if _, err := s.client.GetSendQuota(ctx); err != nil {
		return errors.NewTransientError(serviceName, err)
	}
	return nil
}

func validateMessage(msg *Message) error {
	var issues []errors.Issue
	if !isValidEmail(msg.To) {
		issues = append(issues, errors.Issue{Field: "to", Message: fmt.Sprintf("invalid recipient address: %s", msg.To)})
	}
	if !isValidEmail(msg.From) {
		issues = append(issues, errors.Issue{Field: "from", Message: fmt.Sprintf("invalid sender address: %s", msg.From)})
	}
	if msg.ReplyTo != "" && !isValidEmail(msg.ReplyTo) {
		issues = append(issues, errors.Issue{Field: "replyTo", Message: fmt.Sprintf("invalid reply-to address: %s", msg.ReplyTo)})
	}
	if strings.TrimSpace(msg.Subject) == "" {
		issues = append(issues, errors.Issue{Field: "subject", Message: "subject is required"})
	}
	if len(issues) > 0 {
		return errors.NewValidationError("email validation failed", issues)
	}
	return nil
}

func isValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	if len(parts[0]) == 0 || len(parts[1]) == 0 {
		return false
	}
	return strings.Contains(parts[1], ".")
}

const mimeBoundary = "obj-engine-boundary-7f2a"

// buildMIME assembles a multipart/mixed message with the body part
// first, then base64-encoded attachments.
func buildMIME(msg *Message) []byte {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("From: %s\r\n", msg.From))
	b.WriteString(fmt.Sprintf("To: %s\r\n", msg.To))
	if msg.ReplyTo != "" {
		b.WriteString(fmt.Sprintf("Reply-To: %s\r\n", msg.ReplyTo))
	}
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	b.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z)))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString(fmt.Sprintf("Content-Type: multipart/mixed; boundary=\"%s\"\r\n", mimeBoundary))
	b.WriteString("\r\n")

	b.WriteString(fmt.Sprintf("--%s\r\n", mimeBoundary))
	if msg.IsHTML {
		b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	} else {
		b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	}
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n")

	for _, att := range msg.Attachments {
		b.WriteString(fmt.Sprintf("--%s\r\n", mimeBoundary))
		b.WriteString(fmt.Sprintf("Content-Type: %s\r\n", att.ContentType))
		b.WriteString("Content-Transfer-Encoding: base64\r\n")
		b.WriteString(fmt.Sprintf("Content-Disposition: attachment; filename=\"%s\"\r\n", att.Filename))
		b.WriteString("\r\n")
		b.WriteString(wrapBase64(base64.StdEncoding.EncodeToString(att.Content)))
		b.WriteString("\r\n")
	}

	b.WriteString(fmt.Sprintf("--%s--\r\n", mimeBoundary))
	return []byte(b.String())
}

// wrapBase64 folds encoded content to 76-character lines per RFC 2045.
func wrapBase64(s string) string {
	const lineLen = 76
	var b strings.Builder
	for len(s) > lineLen {
		b.WriteString(s[:lineLen])
		b.WriteString("\r\n")
		s = s[lineLen:]
	}
	b.WriteString(s)
	return b.String()
}
