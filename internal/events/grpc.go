package events

import (
	"time"

	"google.golang.org/grpc/codes"
)

// GRPCClientStart is emitted before a TupleService.Pull call is opened.
// Max is the number of tuples requested; 0 asks for all.
type GRPCClientStart struct {
	Service string
	Method  string
	Target  string
	Max     int
}

// GRPCClientFinish is emitted once a Pull stream ends, fails or is closed.
type GRPCClientFinish struct {
	Service  string
	Method   string
	Target   string
	Received int
	Code     codes.Code
	Err      error
	Duration time.Duration
}

// GRPCServerStart is emitted when a Pull call is received. Max is the
// effective tuple limit after the server cap.
type GRPCServerStart struct {
	Method string
	Max    int
}

// GRPCServerFinish is emitted after a Pull call completes.
type GRPCServerFinish struct {
	Method   string
	Sent     int
	Code     codes.Code
	Err      error
	Duration time.Duration
}
