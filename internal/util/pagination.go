package util

import "strconv"

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

func ParseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

func Calculate(page, size int) (offset, limit int) {
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return (page - 1) * size, size
}
