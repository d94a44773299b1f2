package schedule

import (
	"context"
	"errors"

	"upnext/models"
)

// ErrProviderUnavailable marks a network or parse failure at a provider
// boundary. Soft: the run degrades to the remaining providers.
var ErrProviderUnavailable = errors.New("provider unavailable")

// ErrInvalidTitle marks a tracked title the engine cannot resolve (no
// usable catalog reference). Only the offending title is skipped.
var ErrInvalidTitle = errors.New("invalid title reference")

// ProviderAdapter fetches one provider's raw schedule data for a title and
// normalizes it into ProviderRecords. Adapters do no date arithmetic and no
// precedence logic. "No data" is a nil slice and a nil error; failures wrap
// ErrProviderUnavailable.
type ProviderAdapter interface {
	Name() models.ProviderName
	Fetch(ctx context.Context, title models.TrackedTitle, seasons []int) ([]models.ProviderRecord, error)
}

// SeasonLister is implemented by the catalog adapter, which can cheaply
// enumerate a series' seasons so the aggregator can decide which ones are
// worth fetching.
type SeasonLister interface {
	ListSeasons(ctx context.Context, title models.TrackedTitle) ([]models.SeasonInfo, error)
}

// TokenAware is implemented by adapters that require a per-run user access
// token. The aggregator binds the token from the settings snapshot; an
// adapter without a token is simply not queried.
type TokenAware interface {
	WithToken(token string) ProviderAdapter
}
