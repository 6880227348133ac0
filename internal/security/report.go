package security

import (
	"math"
	"time"
)

type PasswordReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type Report struct {
	SigningAlgorithm string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	Argon2           PasswordReport

	CodeDigits   int
	CodeTTL      time.Duration
	CodeKeyspace uint64
	// GuessesPerCode is the worst-case number of verify attempts one client
	// IP can make against a single code before it expires. Zero means the
	// verify throttle is off and attempts are unbounded.
	GuessesPerCode int

	RefreshRotationEnabled bool
	SubjectRecheckEnabled  bool
	AdminLoginEnabled      bool
	ReservationsEnabled    bool
	AuditEnabled           bool

	IssueThrottleActive   bool
	VerifyThrottleActive  bool
	RefreshThrottleActive bool
	LoginThrottleActive   bool
	RateLimitingActive    bool
}

type ReportInput struct {
	SigningAlgorithm string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	Password         PasswordReport

	CodeDigits int
	CodeTTL    time.Duration

	RotateOnUse          bool
	RequireSubjectExists bool
	AdminLoginEnabled    bool
	ReservationsEnabled  bool
	AuditEnabled         bool

	EnableIssueThrottle   bool
	MaxIssuePerIP         int
	EnableVerifyThrottle  bool
	MaxVerifyPerIP        int
	VerifyWindow          time.Duration
	EnableRefreshThrottle bool
	MaxRefreshPerIP       int
	EnableLoginThrottle   bool
	MaxLoginFailures      int
	LoginCooldown         time.Duration
}

func BuildReport(input ReportInput) Report {
	issue := input.EnableIssueThrottle && input.MaxIssuePerIP > 0
	verify := input.EnableVerifyThrottle && input.MaxVerifyPerIP > 0 && input.VerifyWindow > 0
	refresh := input.EnableRefreshThrottle && input.MaxRefreshPerIP > 0
	login := input.EnableLoginThrottle && input.MaxLoginFailures > 0 && input.LoginCooldown > 0

	return Report{
		SigningAlgorithm:       input.SigningAlgorithm,
		AccessTTL:              input.AccessTTL,
		RefreshTTL:             input.RefreshTTL,
		Argon2:                 input.Password,
		CodeDigits:             input.CodeDigits,
		CodeTTL:                input.CodeTTL,
		CodeKeyspace:           keyspace(input.CodeDigits),
		GuessesPerCode:         guessesPerCode(verify, input.MaxVerifyPerIP, input.VerifyWindow, input.CodeTTL),
		RefreshRotationEnabled: input.RotateOnUse,
		SubjectRecheckEnabled:  input.RequireSubjectExists,
		AdminLoginEnabled:      input.AdminLoginEnabled,
		ReservationsEnabled:    input.ReservationsEnabled,
		AuditEnabled:           input.AuditEnabled,
		IssueThrottleActive:    issue,
		VerifyThrottleActive:   verify,
		RefreshThrottleActive:  refresh,
		LoginThrottleActive:    login,
		RateLimitingActive:     issue || verify || refresh || login,
	}
}

func keyspace(digits int) uint64 {
	if digits <= 0 {
		return 0
	}
	n := uint64(1)
	for i := 0; i < digits; i++ {
		if n > math.MaxUint64/10 {
			return math.MaxUint64
		}
		n *= 10
	}
	return n
}

// Windows restart on the first hit after expiry, so a code can be attacked
// in ttl/window+1 windows, one more when ttl is not a whole multiple.
func guessesPerCode(active bool, perWindow int, window, ttl time.Duration) int {
	if !active || ttl <= 0 {
		return 0
	}
	windows := int(ttl/window) + 1
	if ttl%window != 0 {
		windows++
	}
	return windows * perWindow
}
