package campaign

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// InWindow reports whether now falls inside the campaign's call window,
// evaluated in the campaign's timezone. Bounds are inclusive. A window
// whose end is before its start spans midnight (e.g. 20:00-06:00).
func (c Campaign) InWindow(now time.Time) (bool, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return false, fmt.Errorf("campaign %s: bad timezone %q: %w", c.ID, c.Timezone, err)
	}

	start, err := parseClock(c.WindowStart)
	if err != nil {
		return false, fmt.Errorf("campaign %s: bad window start: %w", c.ID, err)
	}
	end, err := parseClock(c.WindowEnd)
	if err != nil {
		return false, fmt.Errorf("campaign %s: bad window end: %w", c.ID, err)
	}

	local := now.In(loc)
	cur := local.Hour()*60 + local.Minute()

	if start <= end {
		return cur >= start && cur <= end, nil
	}
	// Overnight window.
	return cur >= start || cur <= end, nil
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("bad hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad minute in %q", s)
	}
	return h*60 + m, nil
}
