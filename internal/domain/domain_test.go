package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCampus(t *testing.T) {
	c, err := ParseCampus("SST Campus")
	require.NoError(t, err)
	assert.Equal(t, CampusSST, c)

	_, err = ParseCampus("Uniworld 3")
	assert.Error(t, err)

	_, err = ParseCampus("uniworld 1")
	assert.Error(t, err, "campus match is exact")
}

func TestParseItemType(t *testing.T) {
	typ, err := ParseItemType("found")
	require.NoError(t, err)
	assert.Equal(t, TypeFound, typ)
	assert.Equal(t, TypeLost, typ.Opposite())

	_, err = ParseItemType("stolen")
	assert.Error(t, err)
}

func TestStatusFinal(t *testing.T) {
	assert.False(t, StatusActive.Final())
	assert.True(t, StatusResolved.Final())
	assert.True(t, StatusArchived.Final())
}

func TestClassifyContact(t *testing.T) {
	tests := []struct {
		in   string
		want ContactKind
	}{
		{"", ContactNone},
		{"   ", ContactNone},
		{"jane.doe@university.edu", ContactEmail},
		{"+65 9123 4567", ContactPhone},
		{"(555) 123-4567", ContactPhone},
		{"ask at the library desk", ContactOther},
		{"12345", ContactOther},
		{"not@an email", ContactOther},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyContact(tt.in))
		})
	}
}

func TestStoreFailure(t *testing.T) {
	cause := errors.New("database is locked")

	err := StoreFailure(context.Background(), cause)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, cause)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = StoreFailure(ctx, cause)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)
}
