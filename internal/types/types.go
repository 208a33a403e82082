// Package types provides common type definitions for the demo ingest pipeline.
package types

// ProcessingStatus represents the lifecycle state of a match in the pipeline
type ProcessingStatus string

const (
	// StatusPending represents a discovered match waiting for a worker
	StatusPending ProcessingStatus = "pending"
	// StatusProcessing represents a match claimed by exactly one worker
	StatusProcessing ProcessingStatus = "processing"
	// StatusCompleted represents a match with all snapshots persisted
	StatusCompleted ProcessingStatus = "completed"
	// StatusFailed represents a match that could not be processed
	StatusFailed ProcessingStatus = "failed"
)

// Valid reports whether s is one of the declared statuses
func (s ProcessingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the status admits no further transitions
func (s ProcessingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// DemoCommand is the command tag of a demo frame
type DemoCommand uint8

const (
	// CmdSignOn carries the initial server signon blob
	CmdSignOn DemoCommand = 1
	// CmdPacket carries per-tick entity and player state updates
	CmdPacket DemoCommand = 2
	// CmdSyncTick marks a synchronization point with no payload semantics
	CmdSyncTick DemoCommand = 3
	// CmdConsoleCmd carries a console command string
	CmdConsoleCmd DemoCommand = 4
	// CmdUserCmd carries one player's input command for a tick
	CmdUserCmd DemoCommand = 5
	// CmdDataTables carries the network table definitions
	CmdDataTables DemoCommand = 6
	// CmdStop terminates the frame stream
	CmdStop DemoCommand = 7
	// CmdCustomData carries engine-defined auxiliary data
	CmdCustomData DemoCommand = 8
	// CmdStringTables carries string table snapshots
	CmdStringTables DemoCommand = 9
)

// Valid reports whether c is a known command tag
func (c DemoCommand) Valid() bool {
	return c >= CmdSignOn && c <= CmdStringTables
}

// String returns the wire name of the command tag
func (c DemoCommand) String() string {
	switch c {
	case CmdSignOn:
		return "signon"
	case CmdPacket:
		return "packet"
	case CmdSyncTick:
		return "synctick"
	case CmdConsoleCmd:
		return "consolecmd"
	case CmdUserCmd:
		return "usercmd"
	case CmdDataTables:
		return "datatables"
	case CmdStop:
		return "stop"
	case CmdCustomData:
		return "customdata"
	case CmdStringTables:
		return "stringtables"
	}
	return "unknown"
}

// FeaturePreset names a declared feature mask preset
type FeaturePreset string

const (
	// PresetMinimal enables aim, utility and objective features
	PresetMinimal FeaturePreset = "minimal"
	// PresetStandard extends minimal with movement, info and rules
	PresetStandard FeaturePreset = "standard"
	// PresetRich extends standard with economy and validation
	PresetRich FeaturePreset = "rich"
)

// TimeseriesBackend selects the snapshot store implementation
type TimeseriesBackend string

const (
	// BackendTimescale stores snapshots in a TimescaleDB hypertable
	BackendTimescale TimeseriesBackend = "timescale"
	// BackendClickHouse stores snapshots in a ClickHouse MergeTree table
	BackendClickHouse TimeseriesBackend = "clickhouse"
)
