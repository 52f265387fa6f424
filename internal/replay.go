package internal

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
)

// ReplayResult is the outcome of rebuilding a session from a script
type ReplayResult struct {
	Ledger     Ledger
	FinalState *RepositoryState
	// Mocked is set when the ledger was synthesized without the service
	Mocked bool
}

// RetryPolicy bounds the attempts made per replay step
type RetryPolicy struct {
	Retries uint
	Delay   time.Duration
}

// ReplayEngine rebuilds a ledger by feeding a script through the executor
type ReplayEngine struct {
	executor *Executor
	isDomain func(string) bool
	retry    RetryPolicy
}

// NewReplayEngine creates an engine. isDomain tells domain commands from
// narrative script steps.
func NewReplayEngine(executor *Executor, isDomain func(string) bool, retry RetryPolicy) *ReplayEngine {
	return &ReplayEngine{executor: executor, isDomain: isDomain, retry: retry}
}

// IsDomainCommand reports whether command is sent to the service
func (r *ReplayEngine) IsDomainCommand(command string) bool {
	return r.isDomain(command)
}

// SortSteps orders steps by Order, stable on ties. Missing orders count as 0.
func SortSteps(steps []ScriptStep) []ScriptStep {
	sorted := make([]ScriptStep, len(steps))
	copy(sorted, steps)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OrderValue() < sorted[j].OrderValue()
	})
	return sorted
}

// DomainCommands returns the domain commands of steps, in order
func (r *ReplayEngine) DomainCommands(steps []ScriptStep) []string {
	var out []string
	for _, step := range steps {
		if r.isDomain(step.Command) {
			out = append(out, step.Command)
		}
	}
	return out
}

// Rebuild replays script from initial. Domain commands go through the
// executor with each output state threaded into the next call; other steps
// become successful entries carrying the current state. If any executor
// call still fails after retries the whole result is replaced by a mock
// replay; live and synthetic entries are never mixed.
func (r *ReplayEngine) Rebuild(ctx context.Context, script CommandScript, initial *RepositoryState) ReplayResult {
	ctx, span := tracer().Start(ctx, "replay.rebuild")
	defer span.End()

	steps := SortSteps(script.Steps)
	span.SetAttributes(attribute.Int("steps", len(steps)))

	current := initial
	ledger := make(Ledger, 0, len(steps))
	for _, step := range steps {
		if !r.isDomain(step.Command) {
			ledger = append(ledger, CommandResponse{
				Command:         step.Command,
				Success:         true,
				Output:          outputOrDefault(step.ExpectedOutput),
				RepositoryState: current,
			})
			continue
		}

		resp, err := r.executeStep(ctx, step.Command, current)
		if err != nil {
			LogWarn("Replay of %q failed, falling back to mock replay: %v", step.Command, err)
			span.RecordError(err)
			span.SetAttributes(attribute.Bool("mocked", true))
			return MockReplay(steps, script.TargetState)
		}

		if resp.RepositoryState != nil {
			current = resp.RepositoryState
		}
		output := step.ExpectedOutput
		if output == "" {
			output = resp.Output
		}
		ledger = append(ledger, CommandResponse{
			Command:         step.Command,
			Success:         resp.Success,
			Output:          outputOrDefault(output),
			RepositoryState: current,
		})
	}

	span.SetAttributes(attribute.Bool("mocked", false))
	return ReplayResult{Ledger: ledger, FinalState: current}
}

func (r *ReplayEngine) executeStep(ctx context.Context, command string, state *RepositoryState) (CommandResponse, error) {
	op := func() (CommandResponse, error) {
		resp, err := r.executor.Execute(ctx, command, state)
		if err != nil && ctx.Err() != nil {
			return resp, backoff.Permanent(err)
		}
		return resp, err
	}
	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(r.retry.Delay)),
		backoff.WithMaxTries(r.retry.Retries+1),
	)
	if err != nil {
		var execErr *ExecutorError
		if !errors.As(err, &execErr) {
			err = &ExecutorError{Command: command, Err: err}
		}
		return CommandResponse{}, err
	}
	return resp, nil
}

// MockReplay maps every step to a successful synthetic response carrying
// target as its state, used when the service cannot be reached
func MockReplay(steps []ScriptStep, target *RepositoryState) ReplayResult {
	ledger := make(Ledger, 0, len(steps))
	for _, step := range steps {
		ledger = append(ledger, CommandResponse{
			Command:         step.Command,
			Success:         true,
			Output:          outputOrDefault(step.ExpectedOutput),
			RepositoryState: target,
		})
	}
	return ReplayResult{Ledger: ledger, FinalState: target, Mocked: true}
}

func outputOrDefault(output string) string {
	if output == "" {
		return DefaultSuccessOutput
	}
	return output
}
