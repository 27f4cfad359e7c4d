package queue

import "errors"

var (
	ErrRepositoryNil   = errors.New("queue: repository is nil")
	ErrPayloadNil      = errors.New("queue: payload is nil")
	ErrNoTaskToClaim   = errors.New("queue: no task available to claim")
	ErrNoHandlers      = errors.New("queue: no handlers registered")
	ErrHandlerNotFound = errors.New("queue: no handler registered for task")
	ErrTaskNotFound    = errors.New("queue: task not found")
)
