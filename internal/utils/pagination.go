// Package utils provides small helpers shared by the handler and service
// layers for query parsing and pagination.
package utils

import "strconv"

// Default and maximum page sizes.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// AtoiDefault parses s as an int, returning def when s is empty or invalid.
func AtoiDefault(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ParsePage reads 1-based page and page_size query values. Missing or
// invalid input falls back to page 1 and DefaultPageSize; sizes are bounded
// to [1, MaxPageSize].
func ParsePage(page, pageSize string) (int, int) {
	p := AtoiDefault(page, 1)
	if p < 1 {
		p = 1
	}
	size := AtoiDefault(pageSize, DefaultPageSize)
	switch {
	case size < 1:
		size = 1
	case size > MaxPageSize:
		size = MaxPageSize
	}
	return p, size
}

// Normalize clamps a 1-based page number and a page size into valid ranges
// and returns the corresponding SQL offset and limit.
//
//	page < 1               -> 1
//	pageSize <= 0          -> DefaultPageSize
//	pageSize > MaxPageSize -> MaxPageSize
func Normalize(page, pageSize int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return (page - 1) * pageSize, pageSize
}

// TotalPages is ceil(total/pageSize); 0 when either is non-positive.
func TotalPages(total int64, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}
