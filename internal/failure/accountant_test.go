package failure

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshot_AbsentIsZero(t *testing.T) {
	a := New(3)
	assert.Equal(t, 0, a.Snapshot("X"))
}

func TestForceAck_BelowThreshold(t *testing.T) {
	a := New(3)
	n0 := a.Snapshot("B")
	assert.False(t, a.ShouldForceAck(n0))
	assert.Equal(t, 1, a.RecordFailure("B"))
	assert.Equal(t, 1, a.Snapshot("B"))
}

func TestForceAck_AtThreshold(t *testing.T) {
	a := New(3)
	a.RecordFailure("C")
	a.RecordFailure("C")
	a.RecordFailure("C")

	n0 := a.Snapshot("C")
	assert.Equal(t, 3, n0)
	assert.True(t, a.ShouldForceAck(n0))

	a.RecordFailure("C")
	a.Clear("C")
	assert.Equal(t, 0, a.Snapshot("C"))
}

func TestClear_OnSuccess(t *testing.T) {
	a := New(3)
	a.RecordFailure("D")
	a.Clear("D")
	assert.Equal(t, 0, a.Snapshot("D"))
}

func TestNew_DefaultsNonPositiveBudget(t *testing.T) {
	a := New(0)
	assert.Equal(t, 3, a.MaxFailures())
}
