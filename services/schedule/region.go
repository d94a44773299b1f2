package schedule

import (
	"sort"
	"strings"
	"time"
)

// americasOriginSet holds origin countries whose evening broadcasts land on
// the next calendar day for viewers far east of them.
var americasOriginSet = map[string]bool{
	"US": true,
	"CA": true,
	"MX": true,
	"BR": true,
}

// easternViewerSet holds viewer regions for which an Americas-origin bare
// air date is perceived one day later.
var easternViewerSet = map[string]bool{
	"GB": true, "DE": true, "FR": true, "IT": true, "ES": true,
	"NL": true, "SE": true, "NO": true, "DK": true, "FI": true,
	"AU": true, "NZ": true, "JP": true, "KR": true, "CN": true,
	"IN": true, "RU": true, "PL": true,
}

// globalStreamerNames maps platform names to whether they release at a
// single fixed UTC instant worldwide. Non-global entries exist to shadow
// shorter streamer names they contain ("Cinemax" must not match as "Max");
// matching is case-insensitive, longest key first, and the first matching
// key decides.
var globalStreamerNames = map[string]bool{
	"Netflix":     true,
	"Prime Video": true,
	"Amazon":      true,
	"Disney+":     true,
	"Apple TV+":   true,
	"Paramount+":  true,
	"Max":         true,
	"Hulu":        true,
	"Peacock":     true,
	"Crunchyroll": true,
	"Cinemax":     false,
}

// streamerKeysByLength holds streamer keys sorted by length descending (then
// alphabetical) so that partial matching always resolves against the longest
// (most specific) key first; a longer non-global key shadows any shorter
// global key it contains.
var streamerKeysByLength []string

func init() {
	streamerKeysByLength = make([]string, 0, len(globalStreamerNames))
	for k := range globalStreamerNames {
		streamerKeysByLength = append(streamerKeysByLength, k)
	}
	sort.Slice(streamerKeysByLength, func(i, j int) bool {
		if len(streamerKeysByLength[i]) != len(streamerKeysByLength[j]) {
			return len(streamerKeysByLength[i]) > len(streamerKeysByLength[j])
		}
		return streamerKeysByLength[i] < streamerKeysByLength[j]
	})
}

// GlobalReleaseHourUTC is the canonical time-of-day injected onto bare
// dates from global simultaneous platforms, pinning them to a single
// worldwide instant (08:00:00Z).
const GlobalReleaseHourUTC = 8

// InferViewerRegion resolves the viewer's country code. An explicit
// override wins; otherwise the locale ("en_GB", "de-DE", ...) is parsed;
// the final fallback is US.
func InferViewerRegion(override, locale string) string {
	if r := strings.ToUpper(strings.TrimSpace(override)); len(r) == 2 {
		return r
	}
	// Strip encoding/modifier suffixes: "en_GB.UTF-8" -> "en_GB"
	locale = strings.TrimSpace(locale)
	if i := strings.IndexAny(locale, ".@"); i >= 0 {
		locale = locale[:i]
	}
	locale = strings.ReplaceAll(locale, "-", "_")
	if parts := strings.Split(locale, "_"); len(parts) >= 2 {
		if region := strings.ToUpper(parts[len(parts)-1]); len(region) == 2 {
			return region
		}
	}
	return "US"
}

// IsEasternShiftCandidate reports whether a title's bare air dates should be
// moved one day forward for the viewer: the title originates in the
// Americas and the viewer is in the Eastern-hemisphere set. This corrects
// the perceived day, not the literal UTC day.
func IsEasternShiftCandidate(originCountries []string, viewerRegion string) bool {
	if !easternViewerSet[strings.ToUpper(viewerRegion)] {
		return false
	}
	for _, c := range originCountries {
		if americasOriginSet[strings.ToUpper(c)] {
			return true
		}
	}
	return false
}

// IsGlobalSimultaneousReleaser reports whether any of the networks matches a
// known global streaming platform, longest key first for determinism.
func IsGlobalSimultaneousReleaser(networks []string) bool {
	for _, n := range networks {
		name := strings.TrimSpace(n)
		if name == "" {
			continue
		}
		lower := strings.ToLower(name)
		for _, key := range streamerKeysByLength {
			if strings.Contains(lower, strings.ToLower(key)) {
				if globalStreamerNames[key] {
					return true
				}
				// Matched a non-global name; this network is settled,
				// but a later network may still be global.
				break
			}
		}
	}
	return false
}

// injectGlobalReleaseTime pins a bare date to the canonical global release
// instant. Dates that already carry a time are returned unchanged.
func injectGlobalReleaseTime(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), GlobalReleaseHourUTC, 0, 0, 0, time.UTC)
}
