package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
)

type sendMailFunc func(addr string, a sasl.Client, from string, to []string, r io.Reader) error

// SMTP implements Transport against a relay. Custom args travel as
// X-Campaign-* style headers since SMTP has no metadata channel.
type SMTP struct {
	addr     string
	auth     sasl.Client
	sendMail sendMailFunc
}

func NewSMTP(addr, username, password string) *SMTP {
	var auth sasl.Client
	if username != "" {
		auth = sasl.NewPlainClient("", username, password)
	}
	return &SMTP{addr: addr, auth: auth, sendMail: smtp.SendMail}
}

func (s *SMTP) Name() string { return "smtp" }

func (s *SMTP) Send(ctx context.Context, msg *Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	raw := buildMIME(msg, time.Now())
	if err := s.sendMail(s.addr, s.auth, msg.From.Email, []string{msg.To}, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("smtp: send mail: %w", err)
	}
	return nil
}

func buildMIME(msg *Message, now time.Time) []byte {
	var b bytes.Buffer
	header := func(k, v string) {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}

	header("From", msg.From.String())
	header("To", msg.To)
	if msg.ReplyTo != "" {
		header("Reply-To", msg.ReplyTo)
	}
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", now.Format(time.RFC1123Z))
	header("Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(msg.From.Email)))

	keys := make([]string, 0, len(msg.CustomArgs))
	for k := range msg.CustomArgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		header(customArgHeader(k), msg.CustomArgs[k])
	}

	header("MIME-Version", "1.0")
	header("Content-Type", `text/html; charset="UTF-8"`)
	header("Content-Transfer-Encoding", "8bit")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return b.Bytes()
}

// customArgHeader maps campaign_id to X-Campaign-Id.
func customArgHeader(key string) string {
	parts := strings.Split(key, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
	}
	return "X-" + strings.Join(parts, "-")
}

func domainOf(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return email[i+1:]
	}
	return "localhost"
}
