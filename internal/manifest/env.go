package manifest

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// RuntimeEnv holds the runtime knobs SPEC_FULL §1.2 allows to be
// overridden from the environment, read once at
// RuntimeBuilder.Create (grounded: adred-codev-ws_poc/src env-var config
// pattern).
type RuntimeEnv struct {
	// BaseDir is where shared-memory region files and discovery segments
	// are created (spec §4.D: region manager needs a backing directory
	// since Go has no shm_open).
	BaseDir string `env:"LOLA_BASE_DIR" envDefault:"/dev/shm/lola"`
	// DiscoveryPollInterval is parsed from the environment, but nothing in
	// this module reads it: there is no availability notifier that
	// re-scans a discovery segment.
	DiscoveryPollInterval time.Duration `env:"LOLA_DISCOVERY_POLL_INTERVAL" envDefault:"50ms"`
	// LivenessPollInterval governs how often the liveness oracle checks a
	// tracked participant's process for death (spec §6 liveness
	// signaling).
	LivenessPollInterval time.Duration `env:"LOLA_LIVENESS_POLL_INTERVAL" envDefault:"200ms"`
	// DiscoverySegmentCapacity bounds how many instances of one interface
	// id can be advertised concurrently.
	DiscoverySegmentCapacity uint32 `env:"LOLA_DISCOVERY_SEGMENT_CAPACITY" envDefault:"64"`
}

// LoadRuntimeEnv parses RuntimeEnv from the process environment, applying
// defaults for anything unset.
func LoadRuntimeEnv() (RuntimeEnv, error) {
	var e RuntimeEnv
	if err := env.Parse(&e); err != nil {
		return RuntimeEnv{}, err
	}
	return e, nil
}
