package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Period
		wantErr bool
	}{
		{name: "valid", in: "2024-03", want: Period{Year: 2024, Month: time.March}},
		{name: "december", in: "2023-12", want: Period{Year: 2023, Month: time.December}},
		{name: "month out of range", in: "2024-13", wantErr: true},
		{name: "with day", in: "2024-03-01", wantErr: true},
		{name: "single digit month", in: "2024-3", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePeriod(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidPeriod)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestPeriodBoundaries(t *testing.T) {
	p := Period{Year: 2024, Month: time.January}

	assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), p.Start())
	assert.Equal(t, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), p.End())
	assert.Equal(t, Period{Year: 2023, Month: time.December}, p.Previous())
}

func TestPeriodOfUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	ts := time.Date(2024, time.April, 1, 1, 0, 0, 0, loc)

	assert.Equal(t, "2024-03", PeriodOf(ts).String())
}

func TestReferralEdgeActive(t *testing.T) {
	now := time.Date(2024, time.May, 10, 12, 0, 0, 0, time.UTC)

	assert.True(t, ReferralEdge{MatchExpiresAt: now.Add(time.Second)}.Active(now))
	assert.False(t, ReferralEdge{MatchExpiresAt: now}.Active(now))
}
