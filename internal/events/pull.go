package events

import "time"

// PullStart is emitted before a tuple is pulled from a dataset source.
type PullStart struct {
	Mode string // "raw" or "batch"
}

// PullFinish is emitted after a pull completes. EOF is set when the source
// reported exhaustion.
type PullFinish struct {
	Mode     string
	Tensors  int
	EOF      bool
	Err      error
	Duration time.Duration
}

// ReconstructStart is emitted before a tuple is rebuilt into a graph.
type ReconstructStart struct {
	Kind  string // "datadict", "egograph" or "batchgraph"
	Alias string
}

// ReconstructFinish is emitted after a reconstruction completes.
type ReconstructFinish struct {
	Kind     string
	Alias    string
	Err      error
	Duration time.Duration
}
