package models

import (
	"errors"
)

var (
	ErrNotFound  = errors.New("job not found")
	ErrQueueFull = errors.New("submission queue full")

	ErrNotQueued = errors.New("job is not in queued state")
	ErrTerminal  = errors.New("job is already in a terminal state")
)
