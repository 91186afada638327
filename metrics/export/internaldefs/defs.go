package internaldefs

import (
	goIAM "github.com/MrEthical07/goIAM"
)

// CounterDef binds an engine counter to its exported name. Flow and Outcome
// place it in the per-flow view: one instrument per Flow, one attribute
// value per Outcome.
type CounterDef struct {
	ID      goIAM.MetricID
	Flow    string
	Outcome string
	Name    string
	Help    string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   goIAM.MetricID
	Flow string
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goIAM.MetricRegisterSuccess, Flow: "register", Outcome: "success", Name: "goiam_register_success_total", Help: "Accounts registered with a confirmation mail sent."},
	{ID: goIAM.MetricRegisterConflict, Flow: "register", Outcome: "conflict", Name: "goiam_register_conflict_total", Help: "Registrations rejected as duplicate."},
	{ID: goIAM.MetricConfirmEmailSuccess, Flow: "confirm_email", Outcome: "success", Name: "goiam_confirm_email_success_total", Help: "Redeemed confirmation tokens."},
	{ID: goIAM.MetricConfirmEmailFailure, Flow: "confirm_email", Outcome: "failure", Name: "goiam_confirm_email_failure_total", Help: "Rejected confirmation tokens."},
	{ID: goIAM.MetricLoginSuccess, Flow: "login", Outcome: "success", Name: "goiam_login_success_total", Help: "Successful logins."},
	{ID: goIAM.MetricLoginFailure, Flow: "login", Outcome: "failure", Name: "goiam_login_failure_total", Help: "Failed logins."},
	{ID: goIAM.MetricLoginRateLimited, Flow: "login", Outcome: "rate_limited", Name: "goiam_login_rate_limited_total", Help: "Rate-limited logins."},
	{ID: goIAM.MetricTOTPRequired, Flow: "totp", Outcome: "required", Name: "goiam_totp_required_total", Help: "Logins stopped for a missing TOTP code."},
	{ID: goIAM.MetricTOTPFailure, Flow: "totp", Outcome: "failure", Name: "goiam_totp_failure_total", Help: "Logins with a wrong TOTP code."},
	{ID: goIAM.MetricTOTPEnabled, Flow: "totp", Outcome: "enabled", Name: "goiam_totp_enabled_total", Help: "TOTP enrollments."},
	{ID: goIAM.MetricRefreshSuccess, Flow: "refresh", Outcome: "success", Name: "goiam_refresh_success_total", Help: "Rotated refresh tokens."},
	{ID: goIAM.MetricRefreshFailure, Flow: "refresh", Outcome: "failure", Name: "goiam_refresh_failure_total", Help: "Rejected refresh tokens."},
	{ID: goIAM.MetricRefreshReuseDetected, Flow: "refresh", Outcome: "reuse", Name: "goiam_refresh_reuse_detected_total", Help: "Replayed refresh tokens."},
	{ID: goIAM.MetricPasswordResetRequest, Flow: "password_reset", Outcome: "requested", Name: "goiam_password_reset_request_total", Help: "Password reset mails sent."},
	{ID: goIAM.MetricPasswordResetConfirmSuccess, Flow: "password_reset", Outcome: "success", Name: "goiam_password_reset_confirm_success_total", Help: "Redeemed password reset tokens."},
	{ID: goIAM.MetricPasswordResetConfirmFailure, Flow: "password_reset", Outcome: "failure", Name: "goiam_password_reset_confirm_failure_total", Help: "Rejected password reset tokens."},
	{ID: goIAM.MetricPasswordChangeSuccess, Flow: "password_change", Outcome: "success", Name: "goiam_password_change_success_total", Help: "Password updates."},
	{ID: goIAM.MetricPasswordChangeInvalidOld, Flow: "password_change", Outcome: "invalid_current", Name: "goiam_password_change_invalid_old_total", Help: "Password updates with a wrong current password."},
	{ID: goIAM.MetricPasswordRehashed, Flow: "password_rehash", Outcome: "success", Name: "goiam_password_rehashed_total", Help: "Password digests upgraded on login."},
	{ID: goIAM.MetricLogout, Flow: "logout", Outcome: "success", Name: "goiam_logout_total", Help: "Logouts."},
	{ID: goIAM.MetricMailDeliveryFailure, Flow: "mail", Outcome: "delivery_failure", Name: "goiam_mail_delivery_failure_total", Help: "Confirmation and reset mails that could not be sent."},
	{ID: goIAM.MetricRollbackFailure, Flow: "mail", Outcome: "rollback_failure", Name: "goiam_rollback_failure_total", Help: "Token rollbacks that failed after a mail failure."},
	{ID: goIAM.MetricVerifyAccessFailure, Flow: "verify_access", Outcome: "failure", Name: "goiam_verify_access_failure_total", Help: "Rejected access tokens."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goIAM.MetricVerifyAccessLatency, Flow: "verify_access", Name: "goiam_verify_access_latency_seconds", Help: "VerifyAccess latency."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const (
	AuditDroppedName = "goiam_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

// BucketCount is the number of histogram buckets including +Inf.
const BucketCount = len(goIAM.HistogramBounds) + 1

// HistogramBoundSuffix names each bucket in instrument names.
var HistogramBoundSuffix = [BucketCount]string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// UpperBounds returns the finite bucket bounds in seconds.
func UpperBounds() []float64 {
	out := make([]float64, len(goIAM.HistogramBounds))
	for i, d := range goIAM.HistogramBounds {
		out[i] = d.Seconds()
	}
	return out
}

// Flows returns the distinct counter flows in CounterDefs order.
func Flows() []string {
	var out []string
	seen := make(map[string]bool)
	for _, def := range CounterDefs {
		if !seen[def.Flow] {
			seen[def.Flow] = true
			out = append(out, def.Flow)
		}
	}
	return out
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling short input.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
