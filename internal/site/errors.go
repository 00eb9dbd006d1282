package site

import "errors"

var (
	// ErrNotFound is returned when a site does not exist.
	ErrNotFound = errors.New("site not found")
	// ErrInvalidRequest marks caller input that failed validation.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrArtifactNotReady is returned when the artifact is read before the chunk sequence completed.
	ErrArtifactNotReady = errors.New("artifact not ready")
	// ErrGeneratorConsumed is returned when a generator's chunk sequence is iterated twice.
	ErrGeneratorConsumed = errors.New("generator already consumed")
	// ErrRenderServer marks a failure reported by the rendering backend itself.
	ErrRenderServer = errors.New("render server error")
	// ErrPersistFailed is yielded when the generated HTML could not be stored.
	ErrPersistFailed = errors.New("persist generated html")
	// ErrQueueFull is returned when the screenshot queue rejects a task.
	ErrQueueFull = errors.New("queue full")
)
