package transport

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
)

// Transport delivers one fully rendered email. A nil error means the ESP
// accepted the message.
type Transport interface {
	Send(ctx context.Context, msg *Message) error
	Name() string
}

type Address struct {
	Email string
	Name  string
}

// String formats the address for a From or Reply-To header.
func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}
	return (&mail.Address{Name: a.Name, Address: a.Email}).String()
}

// Message is an outbound campaign email. CustomArgs are echoed back by the
// ESP on delivery events and carry campaign_id and recipient_id.
type Message struct {
	To         string
	From       Address
	ReplyTo    string
	Subject    string
	HTML       string
	CustomArgs map[string]string
}

func (m *Message) Validate() error {
	if m.To == "" {
		return errors.New("transport: message has no recipient")
	}
	if m.From.Email == "" {
		return errors.New("transport: message has no sender")
	}
	return nil
}

// SendError is returned for a non-2xx ESP response.
type SendError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsPermanent reports whether retrying the same message cannot succeed.
func IsPermanent(err error) bool {
	var se *SendError
	if errors.As(err, &se) {
		return se.StatusCode >= 400 && se.StatusCode < 500 && se.StatusCode != 429
	}
	return false
}
