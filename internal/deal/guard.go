package deal

import (
	"fmt"
	"time"
)

const (
	// AttemptsPerCycle wrong codes trigger one lockout.
	AttemptsPerCycle = 5
	OddCycleLockout  = 30 * time.Minute
	EvenCycleLockout = 60 * time.Minute
	CodeLength       = 6
)

// AttemptState is the wrong-code streak for one escrow.
type AttemptState struct {
	Attempts      int
	CooldownUntil *time.Time
}

func (s AttemptState) Locked(now time.Time) bool {
	return s.CooldownUntil != nil && now.Before(*s.CooldownUntil)
}

// RetryAfter is the time left on the lock, zero when unlocked.
func (s AttemptState) RetryAfter(now time.Time) time.Duration {
	if !s.Locked(now) {
		return 0
	}
	return s.CooldownUntil.Sub(now)
}

// LockoutDuration alternates by cycle: odd cycles lock 30 minutes, even 60.
func LockoutDuration(cycle int) time.Duration {
	if cycle%2 == 1 {
		return OddCycleLockout
	}
	return EvenCycleLockout
}

// RecordMiss returns the state after one wrong code submitted while unlocked.
// Every fifth miss starts a cooldown.
func RecordMiss(s AttemptState, now time.Time) AttemptState {
	next := AttemptState{Attempts: s.Attempts + 1}
	if next.Attempts%AttemptsPerCycle == 0 {
		until := now.Add(LockoutDuration(next.Attempts / AttemptsPerCycle))
		next.CooldownUntil = &until
	}
	return next
}

// Reset is the state after a correct code.
func Reset() AttemptState { return AttemptState{} }

const (
	NoticeNone    = "none"
	NoticeWarning = "warning"
	NoticeLocked  = "locked"
)

// Notice is what the deliverer is shown about the attempt streak. It is a
// pure function of the state (and the clock only to decide whether a lock is
// still active), so a reload renders the same text.
type Notice struct {
	Kind          string     `json:"kind"`
	Remaining     int        `json:"remaining,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
	Message       string     `json:"message,omitempty"`
}

func NoticeFor(s AttemptState, now time.Time) Notice {
	if s.Locked(now) {
		until := s.CooldownUntil.UTC()
		return Notice{
			Kind:          NoticeLocked,
			CooldownUntil: &until,
			Message:       lockoutMessage(s.Attempts, until),
		}
	}
	if s.Attempts == 0 || s.Attempts%AttemptsPerCycle == 0 {
		return Notice{Kind: NoticeNone}
	}
	remaining := AttemptsPerCycle - s.Attempts%AttemptsPerCycle
	return Notice{
		Kind:      NoticeWarning,
		Remaining: remaining,
		Message:   warningMessage(remaining),
	}
}

func lockoutMessage(attempts int, until time.Time) string {
	minutes := int(LockoutDuration(attempts/AttemptsPerCycle) / time.Minute)
	return fmt.Sprintf("Too many incorrect codes. Code entry is locked for %d minutes, until %s.",
		minutes, until.Format("15:04 MST"))
}

func warningMessage(remaining int) string {
	if remaining == 1 {
		return "Incorrect code. 1 attempt remaining before code entry is locked."
	}
	return fmt.Sprintf("Incorrect code. %d attempts remaining before code entry is locked.", remaining)
}

// validateCodeFormat enforces exactly CodeLength ASCII digits.
func validateCodeFormat(code string) error {
	if len(code) != CodeLength {
		return validationError(fmt.Sprintf("delivery code must be %d digits", CodeLength))
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return validationError(fmt.Sprintf("delivery code must be %d digits", CodeLength))
		}
	}
	return nil
}
