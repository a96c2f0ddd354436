package execution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffSequence(t *testing.T) {
	b := NewBackoff(2*time.Second, 30*time.Second, 3)

	assert.Equal(t, 1, b.Begin())
	d, ok := b.Fail()
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, d)

	assert.Equal(t, 2, b.Begin())
	d, ok = b.Fail()
	assert.True(t, ok)
	assert.Equal(t, 4*time.Second, d)

	assert.Equal(t, 3, b.Begin())
	_, ok = b.Fail()
	assert.False(t, ok)
	assert.Equal(t, 3, b.Attempts())
}

func TestBackoffIsCapped(t *testing.T) {
	b := NewBackoff(2*time.Second, 5*time.Second, 10)
	var delays []time.Duration
	for {
		b.Begin()
		d, ok := b.Fail()
		if !ok {
			break
		}
		delays = append(delays, d)
	}
	assert.Len(t, delays, 9)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 5 * time.Second}, delays[:3])
	for _, d := range delays[2:] {
		assert.Equal(t, 5*time.Second, d)
	}
}

func TestBackoffSingleAttempt(t *testing.T) {
	b := NewBackoff(time.Second, 0, 0)
	b.Begin()
	_, ok := b.Fail()
	assert.False(t, ok)
}
