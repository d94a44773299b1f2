package models

// Settings is the immutable snapshot of user preferences captured at the
// start of a schedule resolution run. Owned by the settings collaborator;
// the engine only reads it.
type Settings struct {
	ViewerRegionOverride string `json:"viewerRegionOverride,omitempty"` // ISO 3166-1 alpha-2, wins over locale inference
	Locale               string `json:"locale,omitempty"`               // e.g. "en_GB", used when no override is set
	TimeShiftEnabled     bool   `json:"timeShiftEnabled"`
	IgnoreSpecials       bool   `json:"ignoreSpecials"`
	HideTheatrical       bool   `json:"hideTheatrical"`
	TraktAccessToken     string `json:"traktAccessToken,omitempty"` // empty disables the community adapter
}
