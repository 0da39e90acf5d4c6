package ir

// Version constants recorded alongside every journaled actor.
const (
	// IRVersion is the MachineSpec schema version.
	IRVersion = "1"

	// RuntimeVersion is the statekeep runtime version.
	RuntimeVersion = "0.1.0"
)
