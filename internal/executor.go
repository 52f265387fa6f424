package internal

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// StateCache is where the executor finds a session's cached state
type StateCache interface {
	State(id SessionIdentity) *RepositoryState
	SetState(id SessionIdentity, state *RepositoryState)
}

// Executor sends single commands to the execution service. It performs no
// retries; failures come back as *ExecutorError.
type Executor struct {
	service      CommandService
	resetCommand string
}

// NewExecutor creates an executor. resetCommand is the script's
// reinitialize command.
func NewExecutor(service CommandService, resetCommand string) *Executor {
	return &Executor{service: service, resetCommand: resetCommand}
}

// IsResetCommand reports whether command reinitializes the repository
func (e *Executor) IsResetCommand(command string) bool {
	return e.resetCommand != "" && command == e.resetCommand
}

// Execute runs command against state and returns the resulting response
func (e *Executor) Execute(ctx context.Context, command string, state *RepositoryState) (CommandResponse, error) {
	ctx, span := tracer().Start(ctx, "executor.execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("command", command),
		attribute.Bool("state.present", state != nil),
	)

	res, err := e.service.ExecuteCommand(ctx, ExecuteRequest{Command: command, RepositoryState: state})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return CommandResponse{}, &ExecutorError{Command: command, Err: err}
	}
	span.SetAttributes(attribute.Bool("success", res.Success))

	return CommandResponse{
		Command:         command,
		Success:         res.Success,
		Output:          res.Output,
		RepositoryState: res.RepositoryState,
	}, nil
}

// ExecuteCached runs command against the session's cached state. For the
// reset command a non-nil cached state is dropped first, so the service
// starts from nothing instead of no-op'ing against leftovers.
func (e *Executor) ExecuteCached(ctx context.Context, cache StateCache, id SessionIdentity, command string) (CommandResponse, error) {
	state := cache.State(id)
	if state != nil && e.IsResetCommand(command) {
		LogDebug("Discarding cached state of %s before %q", id, command)
		cache.SetState(id, nil)
		state = nil
	}
	return e.Execute(ctx, command, state)
}
