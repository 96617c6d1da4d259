package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlexDecimal(t *testing.T) {
	d, err := ParseFlexDecimal("123.4567")
	require.NoError(t, err)
	assert.Equal(t, "123.4567", d.String())

	d, err = ParseFlexDecimal("123,4567")
	require.NoError(t, err)
	assert.Equal(t, "123.4567", d.String())

	// thousands-style comma alongside a dot is not a decimal separator
	_, err = ParseFlexDecimal("1,234.56")
	assert.Error(t, err)

	_, err = ParseFlexDecimal("")
	assert.Error(t, err)

	_, err = ParseFlexDecimal("abc")
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2022-02-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2022, 2, 15, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("15/02/2022")
	assert.Error(t, err)
}

func TestNormalizeDate(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	in := time.Date(2022, 2, 15, 18, 30, 12, 0, loc)
	assert.Equal(t, time.Date(2022, 2, 15, 0, 0, 0, 0, time.UTC), NormalizeDate(in))
}
