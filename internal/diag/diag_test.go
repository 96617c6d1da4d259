package diag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReportSuccess(t *testing.T) {
	var r Report
	assert.True(t, r.Success())
	assert.Empty(t, r.Notes())

	r.Warnf("no price for %s", "AAA")
	assert.True(t, r.Success(), "warnings alone do not fail an operation")

	r.Errorf("sheet %s missing", "weights")
	assert.False(t, r.Success())
}

func TestReportOrderAndMerge(t *testing.T) {
	var a, b Report
	a.Warnf("first")
	b.Errorf("second")
	b.Warnf("third")

	a.Merge(&b)

	notes := a.Notes()
	assert.Len(t, notes, 3)
	assert.Equal(t, "first", notes[0].Message)
	assert.Equal(t, "second", notes[1].Message)
	assert.Equal(t, "third", notes[2].Message)
	assert.Equal(t, LevelError, notes[1].Level)

	a.Merge(nil)
	assert.Len(t, a.Notes(), 3)
}
