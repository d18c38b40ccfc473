// Package notify dispatches user notifications over NATS, best-effort.
package notify

import (
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Kind names a notification template.
type Kind string

const (
	KindRemind    Kind = "remind"
	KindLate      Kind = "late"
	KindBreak     Kind = "break"
	KindLost      Kind = "lost"
	KindEarly     Kind = "early"
	KindNoVehicle Kind = "novehicle"
)

// Notification is one user-facing message.
type Notification struct {
	ID     string            `json:"id"`
	UserID string            `json:"userId"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Kind   Kind              `json:"kind"`
	Meta   map[string]string `json:"meta,omitempty"`
	SentAt time.Time         `json:"sentAt"`
}

// Metrics receives dispatch outcomes.
type Metrics interface {
	NotifySentInc(kind string)
	NotifyErrInc(kind string)
	NATSSetConnected(connected bool)
}

// Publisher sends notifications to per-user NATS subjects. Dispatch is
// fire-and-forget: failures are logged and reported as undelivered, and
// never retried here.
type Publisher struct {
	nc      *nats.Conn
	metrics Metrics
}

func NewPublisher(url string, m Metrics) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("shuttle-tracker"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &Publisher{nc: nc, metrics: m}, nil
}

func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

// Send publishes the notification and reports whether it was handed to
// the transport.
func (p *Publisher) Send(n Notification) bool {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.SentAt.IsZero() {
		n.SentAt = time.Now()
	}
	subject := "notify.user." + subjectToken(n.UserID)
	b, err := json.Marshal(n)
	if err != nil {
		log.Printf("notify marshal error (user=%s kind=%s): %v", n.UserID, n.Kind, err)
		if p.metrics != nil {
			p.metrics.NotifyErrInc(string(n.Kind))
		}
		return false
	}
	if err := p.nc.Publish(subject, b); err != nil {
		log.Printf("notify publish error (user=%s kind=%s): %v", n.UserID, n.Kind, err)
		if p.metrics != nil {
			p.metrics.NotifyErrInc(string(n.Kind))
		}
		return false
	}
	if p.metrics != nil {
		p.metrics.NotifySentInc(string(n.Kind))
	}
	return true
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
