package events

import (
	"net/http"
	"time"
)

// HTTPStart is emitted when the tuple server receives a request. The
// publishing context carries the request ID.
type HTTPStart struct {
	Request *http.Request
}

// HTTPFinish is emitted after the tuple server answered a request. Bytes
// counts the response body.
type HTTPFinish struct {
	Request  *http.Request
	Status   int
	Bytes    int
	Duration time.Duration
}
