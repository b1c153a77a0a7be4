package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intp(v int) *int { return &v }

func TestCamera_InSchedule(t *testing.T) {
	night := &Camera{HourStart: intp(22), HourEnd: intp(6)}
	for _, h := range []int{22, 23, 0, 5} {
		assert.True(t, night.InSchedule(h), "hour %d", h)
	}
	for _, h := range []int{6, 10, 21} {
		assert.False(t, night.InSchedule(h), "hour %d", h)
	}

	office := &Camera{HourStart: intp(8), HourEnd: intp(17)}
	assert.True(t, office.InSchedule(8))
	assert.True(t, office.InSchedule(16))
	assert.False(t, office.InSchedule(17))
	assert.False(t, office.InSchedule(7))

	t.Run("missing bound", func(t *testing.T) {
		c := &Camera{HourStart: intp(8)}
		assert.False(t, c.InSchedule(9))
	})

	t.Run("empty window", func(t *testing.T) {
		c := &Camera{HourStart: intp(5), HourEnd: intp(5)}
		assert.False(t, c.InSchedule(5))
	})
}
