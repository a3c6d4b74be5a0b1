package scheduler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

func TestParseCredits(t *testing.T) {
	got, err := ParseCredits("Math", "2:1:0")
	require.NoError(t, err)
	assert.Equal(t, CreditTriple{Theory: 2, Tutorial: 1, Practical: 0}, got)

	got, err = ParseCredits("Physics", " 0 : 0 : 2 ")
	require.NoError(t, err)
	assert.True(t, got.IsPurePractical())
	assert.False(t, CreditTriple{Practical: 0}.IsPurePractical())
	assert.False(t, CreditTriple{Theory: 1, Practical: 1}.IsPurePractical())
}

func TestParseCreditsRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"x:1:0", "1:1", "1:1:1:1", "", "1:-1:0", "1::0"} {
		_, err := ParseCredits("Math", raw)
		require.Error(t, err, raw)

		var credErr *InvalidCreditFormatError
		require.True(t, errors.As(err, &credErr), raw)
		assert.Equal(t, "Math", credErr.Subject)
		assert.Equal(t, raw, credErr.Raw)
		assert.True(t, errors.Is(err, appErrors.ErrInvalidCreditFormat))
	}
}
