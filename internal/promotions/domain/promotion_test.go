package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-storefront/pkg/errors"
	"go-storefront/pkg/money"
)

func TestNewPromotion_Validation(t *testing.T) {
	tests := []struct {
		name     string
		pct      string
		duration int
		valid    bool
	}{
		{"zero percent", "0", 7, true},
		{"full percent", "100", 1, true},
		{"negative percent", "-1", 7, false},
		{"over one hundred", "100.5", 7, false},
		{"zero duration", "10", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPromotion("Summer", "", money.MustParse(tt.pct), tt.duration, []uint{1, 1, 2})
			if !tt.valid {
				assert.True(t, errors.Is(err, errors.CodeValidation))
				return
			}
			require.NoError(t, err)
			assert.False(t, p.Active)
			assert.Nil(t, p.StartDate)
			assert.Equal(t, []uint{1, 2}, p.ProductIDs)
		})
	}
}

func TestActivateDeactivate_WindowInvariant(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	p, err := NewPromotion("Spring", "", money.MustParse("20"), 7, nil)
	require.NoError(t, err)

	p.Activate(now)
	require.NotNil(t, p.StartDate)
	require.NotNil(t, p.EndDate)
	assert.Equal(t, now.AddDate(0, 0, 7), *p.EndDate)
	assert.False(t, p.Expired(now.AddDate(0, 0, 7)))
	assert.True(t, p.Expired(now.AddDate(0, 0, 7).Add(time.Second)))

	require.NoError(t, p.SetDuration(3))
	assert.Equal(t, now.AddDate(0, 0, 3), *p.EndDate)

	p.Deactivate()
	assert.False(t, p.Active)
	assert.Nil(t, p.StartDate)
	assert.Nil(t, p.EndDate)
}

func TestBestDiscount_HighestWinsTieLowestID(t *testing.T) {
	promos := []*Promotion{
		{ID: 3, Active: true, DiscountPercentage: money.MustParse("30")},
		{ID: 1, Active: false, DiscountPercentage: money.MustParse("90")},
		{ID: 2, Active: true, DiscountPercentage: money.MustParse("30")},
		{ID: 4, Active: true, DiscountPercentage: money.MustParse("20")},
	}

	best := BestDiscount(promos)

	require.NotNil(t, best)
	assert.Equal(t, uint(2), best.ID)
}

func TestDiscountedPrice(t *testing.T) {
	base := money.MustParse("100.00")

	assert.Nil(t, DiscountedPrice(base, nil))
	assert.Nil(t, DiscountedPrice(base, []*Promotion{{ID: 1, Active: true, DiscountPercentage: money.MustParse("0")}}))

	got := DiscountedPrice(base, []*Promotion{
		{ID: 1, Active: true, DiscountPercentage: money.MustParse("20")},
		{ID: 2, Active: true, DiscountPercentage: money.MustParse("30")},
	})
	require.NotNil(t, got)
	assert.Equal(t, "70.00", money.Format(*got))
}

func TestWindow_MatchesOnlyTheSnapshottedState(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	p, err := NewPromotion("Spring", "", money.MustParse("20"), 7, nil)
	require.NoError(t, err)

	inactive := p.Window()
	p.Activate(now)
	first := p.Window()

	assert.False(t, inactive.Matches(p))
	assert.True(t, first.Matches(p))

	p.Deactivate()
	p.Activate(now.Add(time.Hour))
	assert.False(t, first.Matches(p), "a new window must not match the old one")

	p.Deactivate()
	assert.True(t, inactive.Matches(p))
}
