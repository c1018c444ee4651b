package events

import "time"

// Store operations reported by QueryStart and QueryFinish.
const (
	OpFind        = "find"
	OpDeleteMany  = "deleteMany"
	OpInsertMany  = "insertMany"
	OpReplaceByID = "replaceById"
)

// QueryStart is emitted before a store call. ID pairs it with its QueryFinish;
// many queries of one run are in flight at once.
type QueryStart struct {
	ID         uint64
	Collection string
	Op         string
}

// QueryFinish is emitted after a store call returns. Count is the number of
// documents read, deleted, inserted or replaced.
type QueryFinish struct {
	ID         uint64
	Collection string
	Op         string
	Count      int
	Err        error
	Duration   time.Duration
}
