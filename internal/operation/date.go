package operation

import (
	"fmt"
	"strconv"
	"time"

	apperrors "github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/pkg/errors"
)

// Date is the calendar day a transform run covers.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// String renders the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// DateOf returns the calendar date of t.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ResolveDate uses the explicit input (its first ten characters must be
// YYYY-MM-DD) or defaults to the day before now.
func ResolveDate(input string, now time.Time) (Date, error) {
	if input == "" {
		return DateOf(now.AddDate(0, 0, -1)), nil
	}
	if len(input) < 10 {
		return Date{}, fmt.Errorf("%w: date %q is not YYYY-MM-DD", apperrors.ErrValidation, input)
	}
	t, err := time.Parse("2006-01-02", input[:10])
	if err != nil {
		return Date{}, fmt.Errorf("%w: date %q: %v", apperrors.ErrValidation, input, err)
	}
	return DateOf(t), nil
}

// ResolveMonth uses the explicit month (1-12, optionally zero padded) or the
// month of the day one week before now. The result is always two digits.
func ResolveMonth(input string, now time.Time) (string, error) {
	if input == "" {
		return fmt.Sprintf("%02d", int(now.AddDate(0, 0, -7).Month())), nil
	}
	m, err := strconv.Atoi(input)
	if err != nil || m < 1 || m > 12 {
		return "", fmt.Errorf("%w: month %q", apperrors.ErrValidation, input)
	}
	return fmt.Sprintf("%02d", m), nil
}
