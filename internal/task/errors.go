package task

import "errors"

var (
	// ErrAborted is returned by Execute when the run's cancellation signal
	// was already tripped before the query was issued. The driver never
	// starts a task after cancellation, so this indicates a driver bug.
	ErrAborted = errors.New("task aborted before execution")

	// ErrNoPartialData is returned by ExtractOutputFromError when the error
	// carries no partial payload. Callers must check ShouldRecordAsError first.
	ErrNoPartialData = errors.New("error carries no partial data")

	// ErrUnknownKind is returned by New for a Spec of an unsupported kind.
	ErrUnknownKind = errors.New("unknown task kind")

	// ErrMalformedResult is returned when a response payload cannot be
	// decoded into a search result.
	ErrMalformedResult = errors.New("malformed search result")
)
