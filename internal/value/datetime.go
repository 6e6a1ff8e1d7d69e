package value

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var secondsPerDay = decimal.NewFromInt(86400)

// dateArithmetic handles the date cases of the arithmetic table:
//
//	date + duration -> date
//	date - duration -> date
//	duration + date -> date
//	date - date     -> duration in days
//
// Month and year durations move through the calendar (AddDate) instead of a
// fixed number of seconds, so 2024-01-31 + 1 month lands in March the way
// Go's calendar normalisation defines it.
func dateArithmetic(left Value, op ArithOp, right Value) (Value, error) {
	switch {
	case left.Kind == KindDate && right.Kind == KindDate:
		if op != OpSub {
			return Value{}, fmt.Errorf("operation %s not supported between dates", op)
		}
		delta := left.Time.Sub(right.Time)
		days := divScale(decimal.NewFromFloat(delta.Seconds()), secondsPerDay)
		return Quantity(days, DimDuration, "day"), nil

	case left.Kind == KindDate && right.Kind == KindQuantity && right.Dim == DimDuration:
		switch op {
		case OpAdd:
			return shiftDate(left, right, 1)
		case OpSub:
			return shiftDate(left, right, -1)
		}
		return Value{}, fmt.Errorf("operation %s not supported for date and duration", op)

	case left.Kind == KindQuantity && left.Dim == DimDuration && right.Kind == KindDate:
		if op != OpAdd {
			return Value{}, fmt.Errorf("operation %s not supported for duration and date", op)
		}
		return shiftDate(right, left, 1)
	}

	return Value{}, fmt.Errorf("arithmetic %s not supported for %s and %s", op, left.Kind, right.Kind)
}

// shiftDate moves a date by a duration, sign +1 or -1.
func shiftDate(date Value, dur Value, sign int) (Value, error) {
	if calendarUnit(dur.Unit) {
		if !dur.Num.IsInteger() {
			return Value{}, fmt.Errorf("calendar durations must be whole %ss", dur.Unit)
		}
		n := int(dur.Num.IntPart()) * sign
		var shifted time.Time
		if dur.Unit == "month" {
			shifted = date.Time.AddDate(0, n, 0)
		} else {
			shifted = date.Time.AddDate(n, 0, 0)
		}
		return Date(shifted, date.HasTime), nil
	}
	seconds, err := Convert(dur, "second")
	if err != nil {
		return Value{}, err
	}
	f, _ := seconds.Num.Float64()
	shifted := date.Time.Add(time.Duration(float64(sign) * f * float64(time.Second)))
	return Date(shifted, date.HasTime), nil
}

func compareDates(left time.Time, op CmpOp, right time.Time) bool {
	switch op {
	case CmpEq:
		return left.Equal(right)
	case CmpNeq:
		return !left.Equal(right)
	case CmpLt:
		return left.Before(right)
	case CmpLte:
		return left.Before(right) || left.Equal(right)
	case CmpGt:
		return left.After(right)
	case CmpGte:
		return left.After(right) || left.Equal(right)
	}
	return false
}
