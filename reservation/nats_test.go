package reservation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/codepass"
	"github.com/nats-io/nats.go"
)

var _ codepass.Reservations = (*Publisher)(nil)

type recordingConn struct {
	msgs []*nats.Msg
	err  error
}

func (c *recordingConn) PublishMsg(msg *nats.Msg) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

func TestSchedulePublishesJSON(t *testing.T) {
	conn := &recordingConn{}
	p := NewPublisher(conn)
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	ctx := codepass.WithRequestID(context.Background(), "req-1")
	err := p.Schedule(ctx, codepass.ReservationRequest{
		RegistrantID: "482913", ScheduleID: 77, Guardians: 2, Visitors: 1, RequestedAt: at,
	})
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if len(conn.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(conn.msgs))
	}

	msg := conn.msgs[0]
	if msg.Subject != SubjectPreReservation {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	if got := msg.Header.Get(nats.MsgIdHdr); got != "482913:77" {
		t.Fatalf("unexpected msg id %q", got)
	}

	var ev PreReservationEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	want := PreReservationEvent{RegistrantID: "482913", ScheduleID: 77, Guardians: 2, Visitors: 1, RequestedAt: at, RequestID: "req-1"}
	if ev != want {
		t.Fatalf("payload = %+v, want %+v", ev, want)
	}
}

func TestScheduleCustomSubject(t *testing.T) {
	conn := &recordingConn{}
	p := NewPublisher(conn, WithSubject("staging.reservations"), WithLogger(nil))
	if err := p.Schedule(context.Background(), codepass.ReservationRequest{RegistrantID: "1", ScheduleID: 1}); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if conn.msgs[0].Subject != "staging.reservations" {
		t.Fatalf("unexpected subject %q", conn.msgs[0].Subject)
	}
}

func TestScheduleErrors(t *testing.T) {
	boom := errors.New("nats: connection closed")
	p := NewPublisher(&recordingConn{err: boom})
	if err := p.Schedule(context.Background(), codepass.ReservationRequest{}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped publish error, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewPublisher(&recordingConn{}).Schedule(ctx, codepass.ReservationRequest{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if err := NewPublisher(nil).Schedule(context.Background(), codepass.ReservationRequest{}); err == nil {
		t.Fatal("expected error without a connection")
	}
}
