package reservation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/MrEthical07/codepass"
	"github.com/nats-io/nats.go"
)

// SubjectPreReservation carries one JSON PreReservationEvent per message.
const SubjectPreReservation = "reservation.pre_reservation.requested"

// Conn is the part of *nats.Conn the publisher uses.
type Conn interface {
	PublishMsg(msg *nats.Msg) error
}

// PreReservationEvent is the wire body published for each request.
type PreReservationEvent struct {
	RegistrantID string    `json:"registrantId"`
	ScheduleID   int64     `json:"scheduleId"`
	Guardians    int       `json:"guardians"`
	Visitors     int       `json:"visitors"`
	RequestedAt  time.Time `json:"requestedAt"`
	RequestID    string    `json:"requestId,omitempty"`
}

// Publisher implements codepass.Reservations.
type Publisher struct {
	conn    Conn
	subject string
	logger  *slog.Logger
}

type Option func(*Publisher)

func WithSubject(subject string) Option {
	return func(p *Publisher) {
		if subject != "" {
			p.subject = subject
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewPublisher(conn Conn, opts ...Option) *Publisher {
	p := &Publisher{
		conn:    conn,
		subject: SubjectPreReservation,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Connect dials NATS with unlimited reconnects.
func Connect(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return conn, nil
}

// Schedule publishes req. The Nats-Msg-Id header lets a JetStream stream
// drop duplicates for the same registrant and schedule.
func (p *Publisher) Schedule(ctx context.Context, req codepass.ReservationRequest) error {
	if p == nil || p.conn == nil {
		return errors.New("reservation publisher not connected")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(PreReservationEvent{
		RegistrantID: req.RegistrantID,
		ScheduleID:   req.ScheduleID,
		Guardians:    req.Guardians,
		Visitors:     req.Visitors,
		RequestedAt:  req.RequestedAt,
		RequestID:    codepass.RequestIDFromContext(ctx),
	})
	if err != nil {
		return fmt.Errorf("marshal pre-reservation: %w", err)
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = payload
	msg.Header.Set(nats.MsgIdHdr, req.RegistrantID+":"+strconv.FormatInt(req.ScheduleID, 10))

	p.logger.DebugContext(ctx, "publishing pre-reservation",
		"subject", p.subject, "registrant", req.RegistrantID, "schedule", req.ScheduleID)

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish pre-reservation: %w", err)
	}
	return nil
}
