package gabriel

import "time"

// ResetExpired reports whether a reset issued at issuedAt can no longer be
// redeemed at now. A missing issue date counts as expired.
func ResetExpired(issuedAt *time.Time, now time.Time) bool {
	if issuedAt == nil || issuedAt.IsZero() {
		return true
	}
	return WindowElapsed(*issuedAt, now, PasswordResetWindow)
}

// WindowElapsed is true once now is at or past since+window.
func WindowElapsed(since, now time.Time, window time.Duration) bool {
	return !now.Before(since.Add(window))
}
