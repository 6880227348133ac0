package codepass

import (
	"context"
	"io"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/codepass/internal/audit"
	"github.com/MrEthical07/codepass/internal/stores"
)

// CodePayload is the data bound to a verification code at issuance.
type CodePayload struct {
	Guardians  int   `json:"guardians"`
	Visitors   int   `json:"visitors"`
	ScheduleID int64 `json:"scheduleId"`
}

// CodeDescriptor is returned by IssueCode. Code must reach the registrant
// out of band.
type CodeDescriptor struct {
	Code      string      `json:"code"`
	Payload   CodePayload `json:"payload"`
	CreatedAt time.Time   `json:"createdAt"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// CodeRecord is the stored form of an outstanding code.
type CodeRecord = stores.CodeRecord

// CodeStore persists outstanding codes. Put must fail with ErrCodeExists when
// a live, unconsumed record holds the id. Consume must atomically flip the
// consumed flag and return ErrCodeNotFound or ErrCodeAlreadyConsumed
// otherwise; concurrent Consume calls on one id must see exactly one success.
type CodeStore interface {
	Put(ctx context.Context, record *CodeRecord, ttl time.Duration) error
	Consume(ctx context.Context, id string) (*CodeRecord, error)
	Delete(ctx context.Context, id string) error
}

// Registrant is the principal created by a successful verification.
type Registrant struct {
	RandomID   string    `json:"randomId"`
	Guardians  int       `json:"guardians"`
	Visitors   int       `json:"visitors"`
	ScheduleID int64     `json:"scheduleId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Directory stores registrants. CreateRegistrant is create-or-fetch keyed by
// RandomID: a second call with the same id returns the stored registrant.
type Directory interface {
	RegistrantExists(ctx context.Context, randomID string) (bool, error)
	CreateRegistrant(ctx context.Context, r Registrant) (Registrant, error)
}

// AdminRecord is an administrator as stored by an AdminDirectory.
type AdminRecord struct {
	AdminID      string
	LoginID      string
	PasswordHash string
}

// AdminDirectory looks administrators up. FindAdmin returns ErrAdminNotFound
// for unknown login ids.
type AdminDirectory interface {
	AdminExists(ctx context.Context, adminID string) (bool, error)
	FindAdmin(ctx context.Context, loginID string) (AdminRecord, error)
}

// ReservationRequest asks the scheduling side to pre-reserve a slot for a
// freshly verified registrant.
type ReservationRequest struct {
	RegistrantID string    `json:"registrantId"`
	ScheduleID   int64     `json:"scheduleId"`
	Guardians    int       `json:"guardians"`
	Visitors     int       `json:"visitors"`
	RequestedAt  time.Time `json:"requestedAt"`
}

// Reservations is best-effort. Its errors are logged, audited and counted,
// never returned from Verify. Schedule runs inside Verify under
// Code.ReservationTimeout, so implementations must hand the request off
// (a buffered publish, a queue) rather than wait on the scheduler.
type Reservations interface {
	Schedule(ctx context.Context, req ReservationRequest) error
}

// TokenPair is one access token and one refresh token minted together.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// Claims is what a valid token says about its holder.
type Claims struct {
	SubjectID string
	IsAdmin   bool
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// VerifyResult is the outcome of a matched verification.
type VerifyResult struct {
	Matched    bool
	Payload    CodePayload
	Registrant Registrant
	Tokens     TokenPair
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that discards all events.
type NoOpSink = internalaudit.NoOpSink

type ChannelSink = internalaudit.ChannelSink

type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink logs audit events through a [slog.Logger].
type SlogSink = internalaudit.SlogSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}
