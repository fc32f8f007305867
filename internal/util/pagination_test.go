package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseIntDefault(t *testing.T) {
	assert.Equal(t, 20, ParseIntDefault("", 20))
	assert.Equal(t, 20, ParseIntDefault("abc", 20))
	assert.Equal(t, 20, ParseIntDefault("0", 20))
	assert.Equal(t, 20, ParseIntDefault("-3", 20))
	assert.Equal(t, 7, ParseIntDefault("7", 20))
}

func TestCalculate(t *testing.T) {
	offset, limit := Calculate(1, 20)
	assert.Equal(t, 0, offset)
	assert.Equal(t, 20, limit)

	offset, limit = Calculate(3, 10)
	assert.Equal(t, 20, offset)
	assert.Equal(t, 10, limit)

	offset, limit = Calculate(2, 500)
	assert.Equal(t, 100, offset)
	assert.Equal(t, 100, limit)
}
