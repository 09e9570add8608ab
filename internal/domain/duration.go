package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

var durationUnits = map[string]int64{
	"s":  1,
	"m":  60,
	"h":  3600,
	"d":  86400,
	"w":  7 * 86400,
	"mo": 30 * 86400,
	"y":  365 * 86400,
}

// ParseDuration converts a compact duration such as "1d2h30m" into seconds.
// Units may appear in any order and repeat; "perm" and "permanent" yield Permanent.
func ParseDuration(s string) (int64, error) {
	in := strings.ToLower(strings.TrimSpace(s))
	if in == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if in == "perm" || in == "permanent" {
		return Permanent, nil
	}

	var total int64
	for i := 0; i < len(in); {
		start := i
		for i < len(in) && in[i] >= '0' && in[i] <= '9' {
			i++
		}
		if start == i {
			return 0, fmt.Errorf("invalid duration %q: expected number at offset %d", s, start)
		}
		n, err := strconv.ParseInt(in[start:i], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}

		ustart := i
		for i < len(in) && in[i] >= 'a' && in[i] <= 'z' {
			i++
		}
		mult, ok := durationUnits[in[ustart:i]]
		if !ok {
			return 0, fmt.Errorf("invalid duration %q: unknown unit %q", s, in[ustart:i])
		}
		if n > (math.MaxInt64-total)/mult {
			return 0, fmt.Errorf("invalid duration %q: out of range", s)
		}
		total += n * mult
	}
	if total <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return total, nil
}

// FormatDuration renders seconds in the compact form accepted by ParseDuration.
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		return "permanent"
	}
	if seconds == 0 {
		return "0s"
	}
	var b strings.Builder
	for _, u := range []string{"y", "mo", "w", "d", "h", "m", "s"} {
		mult := durationUnits[u]
		if seconds >= mult {
			fmt.Fprintf(&b, "%d%s", seconds/mult, u)
			seconds %= mult
		}
	}
	return b.String()
}
