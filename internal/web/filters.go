package web

import (
	"strconv"
	"strings"

	"github.com/sloppy/lynistracker/internal/delta"
)

func parseInt(value string, fallback int) int {
	val, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || val <= 0 {
		return fallback
	}
	return val
}

// parseBucket validates the event_type filter of the activity endpoint.
// "" and "all" mean no filter.
func parseBucket(value string) (delta.Bucket, bool) {
	switch b := delta.Bucket(strings.TrimSpace(value)); b {
	case "", "all":
		return "", true
	case delta.BucketAdded, delta.BucketChanged, delta.BucketRemoved:
		return b, true
	default:
		return "", false
	}
}
