package events

import (
	"time"

	"google.golang.org/grpc/codes"
)

// SourceFetchStart is emitted before a remote source call.
type SourceFetchStart struct {
	Method string
	Target string
	Module string
}

// SourceFetchFinish is emitted after a remote source call completes.
type SourceFetchFinish struct {
	Method   string
	Target   string
	Module   string
	Code     codes.Code
	Err      error
	Duration time.Duration
}
