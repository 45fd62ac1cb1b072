package monitor

import "errors"

var (
	ErrAlreadyStarted = errors.New("pipeline already started")
	errNotStarted     = errors.New("frame source did not start")
	errCameraLost     = errors.New("frame source stopped capturing")
)
