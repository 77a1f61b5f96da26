package operation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/pkg/errors"
)

func TestResolveDateDefaultsToYesterday(t *testing.T) {
	t.Parallel()

	cases := []struct {
		now  time.Time
		want Date
	}{
		{now: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), want: Date{2024, time.February, 29}},
		{now: time.Date(2023, 3, 1, 8, 0, 0, 0, time.UTC), want: Date{2023, time.February, 28}},
		{now: time.Date(2025, 1, 1, 0, 30, 0, 0, time.UTC), want: Date{2024, time.December, 31}},
		{now: time.Date(2024, 7, 15, 23, 59, 0, 0, time.UTC), want: Date{2024, time.July, 14}},
	}

	for _, tc := range cases {
		got, err := ResolveDate("", tc.now)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, tc.now.String())
	}
}

func TestResolveDateExplicit(t *testing.T) {
	t.Parallel()

	got, err := ResolveDate("2024-06-05T12:00:00Z", time.Now())
	require.NoError(t, err)
	assert.Equal(t, Date{2024, time.June, 5}, got)
	assert.Equal(t, "2024-06-05", got.String())

	_, err = ResolveDate("2024-6-5", time.Now())
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = ResolveDate("2024-13-01", time.Now())
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestResolveMonth(t *testing.T) {
	t.Parallel()

	got, err := ResolveMonth("", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "02", got)

	got, err = ResolveMonth("", time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "03", got)

	got, err = ResolveMonth("7", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "07", got)

	_, err = ResolveMonth("13", time.Now())
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = ResolveMonth("01' OR '1'='1", time.Now())
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}
