package deal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRecordMissCountsUpByOne(t *testing.T) {
	s := AttemptState{}
	for i := 1; i <= 4; i++ {
		s = RecordMiss(s, t0)
		assert.Equal(t, i, s.Attempts)
		assert.Nil(t, s.CooldownUntil)
	}
}

func TestLockoutCadenceAlternates(t *testing.T) {
	want := []time.Duration{30 * time.Minute, 60 * time.Minute, 30 * time.Minute, 60 * time.Minute}
	s := AttemptState{}
	now := t0
	for cycle, d := range want {
		for i := 0; i < AttemptsPerCycle; i++ {
			require.False(t, s.Locked(now), "cycle %d attempt %d", cycle+1, i+1)
			s = RecordMiss(s, now)
		}
		require.True(t, s.Locked(now))
		assert.Equal(t, (cycle+1)*AttemptsPerCycle, s.Attempts)
		assert.Equal(t, d, s.CooldownUntil.Sub(now), "cycle %d", cycle+1)
		assert.Equal(t, d, s.RetryAfter(now))
		now = s.CooldownUntil.Add(time.Second)
		assert.False(t, s.Locked(now))
	}
}

func TestLockedOnlyOnMultiplesOfFive(t *testing.T) {
	s := AttemptState{}
	for i := 1; i <= 20; i++ {
		s = RecordMiss(s, t0.Add(time.Duration(i)*2*time.Hour))
		assert.Equal(t, i%AttemptsPerCycle == 0, s.CooldownUntil != nil, "attempt %d", i)
	}
}

func TestNoticeWarningsCountDown(t *testing.T) {
	s := AttemptState{}
	assert.Equal(t, NoticeNone, NoticeFor(s, t0).Kind)

	for _, remaining := range []int{4, 3, 2, 1} {
		s = RecordMiss(s, t0)
		n := NoticeFor(s, t0)
		assert.Equal(t, NoticeWarning, n.Kind)
		assert.Equal(t, remaining, n.Remaining)
	}
	assert.Equal(t, "Incorrect code. 1 attempt remaining before code entry is locked.", NoticeFor(s, t0).Message)
}

func TestNoticeLockedIsDeterministic(t *testing.T) {
	until := t0.Add(30 * time.Minute)
	s := AttemptState{Attempts: 5, CooldownUntil: &until}

	first := NoticeFor(s, t0.Add(time.Minute))
	again := NoticeFor(s, t0.Add(10*time.Minute))
	assert.Equal(t, NoticeLocked, first.Kind)
	assert.Equal(t, first.Message, again.Message)
	assert.Equal(t, "Too many incorrect codes. Code entry is locked for 30 minutes, until 12:30 UTC.", first.Message)

	// Expired lock on a multiple of five shows nothing until the next miss.
	assert.Equal(t, NoticeNone, NoticeFor(s, until.Add(time.Second)).Kind)
}

func TestResetClearsEverything(t *testing.T) {
	assert.Equal(t, AttemptState{}, Reset())
}

func TestValidateCodeFormat(t *testing.T) {
	assert.NoError(t, validateCodeFormat("012345"))
	for _, bad := range []string{"", "12345", "1234567", "12a456", " 12345", "１２３４５６"} {
		err := validateCodeFormat(bad)
		require.Error(t, err, bad)
		assert.True(t, IsKind(err, KindValidation), bad)
	}
}
