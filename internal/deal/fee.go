package deal

import "github.com/shopspring/decimal"

// FeeSchedule computes the platform fee for a gross amount. Implementations
// must be deterministic and monotonic in gross.
type FeeSchedule interface {
	PlatformFee(gross int64) int64
}

// FeeFunc adapts a plain function to FeeSchedule.
type FeeFunc func(gross int64) int64

func (f FeeFunc) PlatformFee(gross int64) int64 { return f(gross) }

// PercentFee charges RateBps basis points of gross, rounded half-up to the
// minor unit, never less than MinFee and never more than gross.
type PercentFee struct {
	RateBps int64
	MinFee  int64
}

func (p PercentFee) PlatformFee(gross int64) int64 {
	if gross <= 0 {
		return 0
	}
	fee := decimal.NewFromInt(gross).
		Mul(decimal.NewFromInt(p.RateBps)).
		Div(decimal.NewFromInt(10000)).
		Round(0).
		IntPart()
	if fee < p.MinFee {
		fee = p.MinFee
	}
	if fee > gross {
		fee = gross
	}
	if fee < 0 {
		fee = 0
	}
	return fee
}

// splitGross applies the schedule and returns (fee, net) with fee clamped to [0, gross].
func splitGross(schedule FeeSchedule, gross int64) (int64, int64) {
	fee := schedule.PlatformFee(gross)
	if fee < 0 {
		fee = 0
	}
	if fee > gross {
		fee = gross
	}
	return fee, gross - fee
}
