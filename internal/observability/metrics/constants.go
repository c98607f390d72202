package metrics

import "time"

// Operation names recorded through Recorder.
const (
	OpConfigure      = "configure"
	OpRelease        = "release"
	OpReadInput      = "read_input"
	OpWriteOutput    = "write_output"
	OpSignalShutdown = "signal_shutdown"
	OpBorrow         = "borrow"
	OpProcess        = "process"
	OpRecord         = "record"
)

// Status values recorded through Recorder.
const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusShutdown = "shutdown"
)

// Cycle outcomes, the outcome label of rtbridge_cycles_total.
const (
	OutcomeCompleted = "completed"
	OutcomeAborted   = "aborted"
	OutcomeSkipped   = "skipped"
)

// Level kinds, the kind label of rtbridge_input_level_dbfs.
const (
	LevelRMS  = "rms"
	LevelPeak = "peak"
)

const (
	// ShutdownTimeout bounds graceful shutdown of the metrics endpoint.
	ShutdownTimeout = 5 * time.Second
)
