package docshift_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docshift/docshift"
	"github.com/docshift/docshift/kit/errors"
)

func TestParseID(t *testing.T) {
	cases := []struct {
		raw   string
		valid bool
	}{
		{"2024_01_15_0930_4K7KQZ@add-users", true},
		{"2024_01_15_0930_A@x", true},
		{"2024_01_15_0930_4K7KQZ@Add-Users", false}, // uppercase label
		{"2024_1_15_0930_4K7KQZ@add-users", false},  // short month
		{"2024_01_15_0930@add-users", false},        // missing disambiguator
		{"2024_01_15_0930_4k7kqz@add-users", false}, // lowercase disambiguator
		{"add-users", false},
		{"", false},
	}

	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			id, err := docshift.ParseID(tc.raw)
			if tc.valid {
				require.NoError(t, err)
				assert.True(t, id.Valid())
			} else {
				require.Error(t, err)
				assert.Equal(t, errors.EInvalid, errors.ErrorCode(err))
			}
		})
	}
}

func TestIDComponents(t *testing.T) {
	id := docshift.ID("2024_01_15_0930_4K7KQZ@add-users")

	assert.Equal(t, "2024_01_15_0930_4K7KQZ", id.Timestamp())
	assert.Equal(t, "add-users", id.Label())
}

func TestIDOrderingIgnoresLabel(t *testing.T) {
	a := docshift.ID("2024_01_15_0930_AAAAAA@zzz")
	b := docshift.ID("2024_01_15_0931_AAAAAA@aaa")

	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.Equal(t, -1, docshift.CompareIDs(a, b))

	// same timestamp, different labels: equal for ordering purposes
	c := docshift.ID("2024_01_15_0930_AAAAAA@other")
	assert.Equal(t, 0, docshift.CompareIDs(a, c))
}

func TestIDGenerator(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC))

	gen := docshift.NewIDGenerator(
		docshift.WithClock(mock),
		docshift.WithRandSource(rand.NewSource(1)),
	)

	id, err := gen.Generate("add-users")
	require.NoError(t, err)
	require.True(t, id.Valid(), "generated id %q must be well formed", id)
	assert.Equal(t, "add-users", id.Label())
	assert.Contains(t, string(id), "2024_01_15_0930_")

	// generated ids from a later clock order strictly after
	mock.Add(time.Minute)
	later, err := gen.Generate("add-orders")
	require.NoError(t, err)
	assert.True(t, id.Less(later))
}

func TestIDGeneratorRejectsBadLabel(t *testing.T) {
	gen := docshift.NewIDGenerator()

	for _, label := range []string{"", "Add Users", "UPPER", "under_score"} {
		_, err := gen.Generate(label)
		require.Error(t, err, "label %q", label)
		assert.Equal(t, errors.EInvalid, errors.ErrorCode(err))
	}
}
