package events

import (
	"net/http"
	"time"
)

// HTTPStart is emitted when a trigger request is received.
// Context carries the request context.
type HTTPStart struct {
	Request *http.Request
	Route   string
}

// HTTPFinish is emitted after the handler completes.
type HTTPFinish struct {
	Request  *http.Request
	Route    string
	Status   int
	Duration time.Duration
}
