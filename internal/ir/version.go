package ir

// Version constants for the data model and engine.
const (
	// SnapshotVersion is the version of the exported entity snapshot shape.
	SnapshotVersion = "1"

	// EngineVersion is the Forge engine version.
	EngineVersion = "0.1.0"
)
