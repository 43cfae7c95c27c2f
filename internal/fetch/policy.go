package fetch

import (
	"fmt"
	"strings"
	"time"
)

// RefetchPolicy decides whether a key that already loaded is loaded again
// when a consumer mounts it.
type RefetchPolicy int

const (
	// RefetchNever keeps successful data until the key is invalidated.
	RefetchNever RefetchPolicy = iota
	// RefetchIfStale reloads once the data is older than StaleTime.
	RefetchIfStale
	RefetchAlways
)

func (p RefetchPolicy) String() string {
	switch p {
	case RefetchNever:
		return "never"
	case RefetchIfStale:
		return "stale"
	case RefetchAlways:
		return "always"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

func ParseRefetchPolicy(s string) (RefetchPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "never":
		return RefetchNever, nil
	case "stale":
		return RefetchIfStale, nil
	case "always":
		return RefetchAlways, nil
	default:
		return RefetchNever, fmt.Errorf("unknown refetch policy %q", s)
	}
}

func (p RefetchPolicy) refetch(updatedAt time.Time, staleTime time.Duration, now time.Time) bool {
	switch p {
	case RefetchAlways:
		return true
	case RefetchIfStale:
		return now.Sub(updatedAt) >= staleTime
	default:
		return false
	}
}
