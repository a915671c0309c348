package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPeriod возвращается при разборе периода не в формате YYYY-MM.
var ErrInvalidPeriod = errors.New("invalid period")

const periodLayout = "2006-01"

// Period задаёт календарный месяц в UTC, по которому агрегируются выплаты.
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf возвращает период, которому принадлежит момент t.
func PeriodOf(t time.Time) Period {
	t = t.UTC()
	return Period{Year: t.Year(), Month: t.Month()}
}

// ParsePeriod разбирает строку вида "2024-03".
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse(periodLayout, s)
	if err != nil || len(s) != len(periodLayout) {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return PeriodOf(t), nil
}

// String возвращает период в формате YYYY-MM.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// IsZero сообщает, задан ли период.
func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

// Start возвращает первый момент периода.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End возвращает первый момент следующего периода (граница не включается).
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

// Previous возвращает предыдущий календарный месяц.
func (p Period) Previous() Period {
	return PeriodOf(p.Start().AddDate(0, -1, 0))
}

// MarshalText реализует encoding.TextMarshaler.
func (p Period) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText реализует encoding.TextUnmarshaler.
func (p *Period) UnmarshalText(b []byte) error {
	parsed, err := ParsePeriod(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
