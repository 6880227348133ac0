package internaldefs

import "github.com/MrEthical07/codepass"

// Def names one engine metric for export.
type Def struct {
	ID   codepass.MetricID
	Name string
	Help string
}

var Counters = []Def{
	{ID: codepass.MetricCodeIssued, Name: "codepass_code_issued_total", Help: "Verification codes issued."},
	{ID: codepass.MetricCodeCollision, Name: "codepass_code_collision_total", Help: "Generated codes that collided with a live code."},
	{ID: codepass.MetricCodeExhausted, Name: "codepass_code_exhausted_total", Help: "Issuances that ran out of generation attempts."},
	{ID: codepass.MetricCodeIssueFailure, Name: "codepass_code_issue_failure_total", Help: "Issuances rejected or failed for other reasons."},
	{ID: codepass.MetricVerifySuccess, Name: "codepass_verify_success_total", Help: "Codes redeemed."},
	{ID: codepass.MetricVerifyFailure, Name: "codepass_verify_failure_total", Help: "Verification attempts denied."},
	{ID: codepass.MetricVerifyReplay, Name: "codepass_verify_replay_total", Help: "Attempts to redeem an already consumed code."},
	{ID: codepass.MetricReservationRequested, Name: "codepass_reservation_requested_total", Help: "Pre-reservation requests sent."},
	{ID: codepass.MetricReservationFailure, Name: "codepass_reservation_failure_total", Help: "Pre-reservation requests that failed."},
	{ID: codepass.MetricTokenPairIssued, Name: "codepass_token_pair_issued_total", Help: "Token pairs minted."},
	{ID: codepass.MetricValidateSuccess, Name: "codepass_validate_success_total", Help: "Access tokens accepted."},
	{ID: codepass.MetricValidateFailure, Name: "codepass_validate_failure_total", Help: "Access tokens rejected."},
	{ID: codepass.MetricRefreshSuccess, Name: "codepass_refresh_success_total", Help: "Successful reissues."},
	{ID: codepass.MetricRefreshFailure, Name: "codepass_refresh_failure_total", Help: "Failed reissues."},
	{ID: codepass.MetricRefreshReuseDetected, Name: "codepass_refresh_reuse_detected_total", Help: "Refresh tokens presented after rotation."},
	{ID: codepass.MetricAdminLoginSuccess, Name: "codepass_admin_login_success_total", Help: "Successful admin logins."},
	{ID: codepass.MetricAdminLoginFailure, Name: "codepass_admin_login_failure_total", Help: "Failed admin logins."},
	{ID: codepass.MetricRateLimitHit, Name: "codepass_rate_limit_hit_total", Help: "Requests denied by a rate limit."},
	{ID: codepass.MetricStoreUnavailable, Name: "codepass_store_unavailable_total", Help: "Redis or code store failures."},
	{ID: codepass.MetricDirectoryUnavailable, Name: "codepass_directory_unavailable_total", Help: "Directory failures."},
}

var Histograms = []Def{
	{ID: codepass.MetricVerifyLatency, Name: "codepass_verify_latency_seconds", Help: "Verify latency."},
	{ID: codepass.MetricValidateLatency, Name: "codepass_validate_latency_seconds", Help: "Validate latency."},
}

// Bounds are the upper bucket bounds in seconds, in Prometheus "le" form.
var Bounds = [codepass.MetricHistogramBuckets]string{
	"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf",
}

// BoundSuffixes are Bounds spelled for use inside instrument names.
var BoundSuffixes = [codepass.MetricHistogramBuckets]string{
	"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf",
}

const (
	AuditDroppedName = "codepass_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped on a full dispatcher buffer."
)

// Cumulative turns per-bucket counts into cumulative counts. Missing
// buckets count as zero.
func Cumulative(raw []uint64) [codepass.MetricHistogramBuckets]uint64 {
	var out [codepass.MetricHistogramBuckets]uint64
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
