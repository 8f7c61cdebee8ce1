package jobstate

import (
	"errors"
	"testing"

	"github.com/schedora/engine/internal/core/engineerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{Pending, Scheduled, true},
		{Pending, Running, true},
		{Pending, Canceled, true},
		{Pending, Success, false},
		{Scheduled, Running, true},
		{Scheduled, Scheduled, false},
		{Running, Success, true},
		{Running, Failed, true},
		{Running, Retrying, true},
		{Running, Canceled, true},
		{Running, Pending, false},
		{Failed, Retrying, true},
		{Failed, Dead, true},
		{Failed, Scheduled, false},
		{Retrying, Scheduled, true},
		{Retrying, Running, false},
		{Success, Pending, false},
		{Dead, Retrying, false},
		{Canceled, Running, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestValidateTransition(t *testing.T) {
	require.NoError(t, ValidateTransition(Pending, Running))

	err := ValidateTransition(Success, Running)
	require.Error(t, err)
	assert.True(t, errors.Is(err, engineerr.ErrInvalidStateTransition))

	var ite *engineerr.InvalidTransitionError
	require.True(t, errors.As(err, &ite))
	assert.Equal(t, "SUCCESS", ite.From)
	assert.Equal(t, "RUNNING", ite.To)
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []Status{Success, Dead, Canceled} {
		assert.True(t, IsTerminal(s), s)
	}
	for _, s := range []Status{Pending, Scheduled, Running, Retrying, Failed} {
		assert.False(t, IsTerminal(s), s)
	}
}
