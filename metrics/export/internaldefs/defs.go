package internaldefs

import (
	goSyncAuth "github.com/MrEthical07/goSyncAuth"
)

// CounterDef maps an engine counter to its exported name.
type CounterDef struct {
	ID   goSyncAuth.MetricID
	Name string
	Help string
}

// HistogramDef maps an engine histogram to its exported name.
type HistogramDef struct {
	ID   goSyncAuth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported engine counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goSyncAuth.MetricAuthAttempt, Name: "gosyncauth_auth_attempt_total", Help: "Authorization attempts."},
	{ID: goSyncAuth.MetricAuthSuccess, Name: "gosyncauth_auth_success_total", Help: "Successful authorizations."},
	{ID: goSyncAuth.MetricAuthFailure, Name: "gosyncauth_auth_failure_total", Help: "Authorizations rejected for invalid credentials."},
	{ID: goSyncAuth.MetricAuthTempBanned, Name: "gosyncauth_auth_temp_banned_total", Help: "Authorizations refused by the temporary IP ban."},
	{ID: goSyncAuth.MetricAuthPermaBanned, Name: "gosyncauth_auth_perma_banned_total", Help: "Authorizations refused for permanently banned credentials."},
	{ID: goSyncAuth.MetricAuthIdentityBanned, Name: "gosyncauth_auth_identity_banned_total", Help: "Authorizations refused for banned character identities."},
	{ID: goSyncAuth.MetricAuthLocalContent, Name: "gosyncauth_auth_local_content_total", Help: "Authorizations through the local-content path."},
	{ID: goSyncAuth.MetricAuthUnknownError, Name: "gosyncauth_auth_unknown_error_total", Help: "Authorizations that failed on a backend error."},
	{ID: goSyncAuth.MetricDuplicateSession, Name: "gosyncauth_duplicate_session_total", Help: "Logins refused because the account is already online."},
	{ID: goSyncAuth.MetricTokenIssued, Name: "gosyncauth_token_issued_total", Help: "Session tokens issued at login."},
	{ID: goSyncAuth.MetricTokenRenewed, Name: "gosyncauth_token_renewed_total", Help: "Session tokens renewed."},
	{ID: goSyncAuth.MetricTokenRenewFailure, Name: "gosyncauth_token_renew_failure_total", Help: "Refused token renewals."},
}

// HistogramDefs lists every exported engine histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSyncAuth.MetricAuthorizeLatency, Name: "gosyncauth_authorize_latency_seconds", Help: "Authorize latency histogram."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "gosyncauth_audit_dropped_total"

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// engine bucket is the implicit +Inf bucket.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// publish one instrument per bucket.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, padding with zeroes.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
