package utils

import (
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// GenerateRateLimitKey creates a unique key for rate limiting
func GenerateRateLimitKey(teamID uint, contactID, path string) string {
	return fmt.Sprintf("rl:%d:%s:%s", teamID, contactID, path)
}

// Pointer returns a pointer to the given value
func Pointer[T any](v T) *T {
	return &v
}

// ParseUint parses a route or query parameter into a uint ID
func ParseUint(s string) (uint, error) {
	i, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(i), nil
}

// PaginatedResponse wraps list results with paging metadata
func PaginatedResponse(data interface{}, total int64, page, limit int) fiber.Map {
	return fiber.Map{
		"data":  data,
		"total": total,
		"page":  page,
		"limit": limit,
	}
}
