package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionalInstant(t *testing.T) {
	ts, err := optionalInstant("")
	require.NoError(t, err)
	assert.Nil(t, ts)

	ts, err = optionalInstant("2025-11-05T10:00:00+01:00")
	require.NoError(t, err)
	assert.True(t, ts.Equal(time.Date(2025, 11, 5, 9, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.UTC, ts.Location())

	ts, err = optionalInstant("2025-11-05T09:30:00")
	require.NoError(t, err)
	assert.True(t, ts.Equal(time.Date(2025, 11, 5, 9, 30, 0, 0, time.UTC)))

	ts, err = optionalInstant("2025-11-05")
	require.NoError(t, err)
	assert.True(t, ts.Equal(time.Date(2025, 11, 5, 0, 0, 0, 0, time.UTC)))

	_, err = optionalInstant("yesterday")
	assert.Error(t, err)
}

func TestRequireFlag(t *testing.T) {
	assert.EqualError(t, requireFlag("agent", " "), "--agent required")
	assert.NoError(t, requireFlag("agent", "a1"))
}
