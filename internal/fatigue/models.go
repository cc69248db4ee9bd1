package fatigue

import "hush/pkg/models"

type Scope string

const (
	ScopeChannelHourly Scope = "channel_hourly"
	ScopeGlobalHourly  Scope = "global_hourly"
	ScopeCooldown      Scope = "cooldown"
)

// Verdict is ok when Exceeded is false.
type Verdict struct {
	Exceeded bool
	Scope    Scope
}

// Preferences are the user settings the tracker exposes to rules.
type Preferences struct {
	DoNotDisturb bool             `json:"do_not_disturb"`
	OptedOut     []models.Channel `json:"opted_out_channels"`
}
