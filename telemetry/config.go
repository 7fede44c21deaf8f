package telemetry

// Config holds telemetry settings and the named profiles below. Nothing in
// this package reads it: NewOTelProvider always exports to stdout and samples
// every span, so Exporter, Endpoint and SamplingRate do not affect it.
type Config struct {
	Enabled      bool
	ServiceName  string
	Endpoint     string
	Exporter     string // "stdout" (default; anything else falls back to stdout)
	SamplingRate float64
}

// Profile represents a pre-configured telemetry profile.
type Profile string

const (
	ProfileDevelopment Profile = "development"
	ProfileProduction  Profile = "production"
)

// Profiles contains pre-configured telemetry profiles for common
// deployment shapes.
var Profiles = map[Profile]Config{
	ProfileDevelopment: {
		Enabled:      true,
		Exporter:     "stdout",
		SamplingRate: 1.0,
	},
	ProfileProduction: {
		Enabled:      true,
		Exporter:     "stdout",
		SamplingRate: 0.1,
	},
}

// UseProfile returns a configuration based on a profile name, defaulting to
// development when the profile is unrecognized.
func UseProfile(profile Profile) Config {
	if config, ok := Profiles[profile]; ok {
		return config
	}
	return Profiles[ProfileDevelopment]
}

// WithOverrides applies non-zero overrides onto c, returning the merged
// configuration.
func (c Config) WithOverrides(overrides Config) Config {
	if overrides.Enabled {
		c.Enabled = overrides.Enabled
	}
	if overrides.ServiceName != "" {
		c.ServiceName = overrides.ServiceName
	}
	if overrides.Endpoint != "" {
		c.Endpoint = overrides.Endpoint
	}
	if overrides.Exporter != "" {
		c.Exporter = overrides.Exporter
	}
	if overrides.SamplingRate > 0 {
		c.SamplingRate = overrides.SamplingRate
	}
	return c
}
