// Package providers implements the schedule provider adapters: TMDB as the
// catalog and regional-release source, TVDB for per-episode air dates and
// Trakt for community-reported air timestamps. Adapters only translate
// provider schemas into normalized records; precedence and date arithmetic
// live in the schedule package.
package providers

import (
	"fmt"
	"strings"
	"time"

	"upnext/services/schedule"

	"github.com/araddon/dateparse"
)

// parseDate tolerantly parses a provider date string. Returns the UTC time
// and whether the raw value carried a time-of-day component.
func parseDate(raw string) (time.Time, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false, fmt.Errorf("empty date")
	}
	t, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.UTC(), strings.Contains(raw, ":"), nil
}

// unavailable wraps a provider failure so the aggregator treats it as a
// soft degradation rather than a hard error.
func unavailable(provider string, err error) error {
	return fmt.Errorf("%w: %s: %v", schedule.ErrProviderUnavailable, provider, err)
}
