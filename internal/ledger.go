package internal

import "strings"

// DefaultSuccessOutput is shown for script steps with no declared output
const DefaultSuccessOutput = "Command executed successfully"

// Ledger is the ordered log of command responses for one session.
// Order is call order; nothing is re-sorted by time.
type Ledger []CommandResponse

// Append returns a new ledger with resp at the tail. The input is not modified.
func Append(l Ledger, resp CommandResponse) Ledger {
	out := make(Ledger, len(l), len(l)+1)
	copy(out, l)
	return append(out, resp)
}

// CurrentState returns the state of the last entry carrying one, or nil
func CurrentState(l Ledger) *RepositoryState {
	for i := len(l) - 1; i >= 0; i-- {
		if l[i].RepositoryState != nil {
			return l[i].RepositoryState
		}
	}
	return nil
}

// Clone returns a copy whose backing array is not shared
func (l Ledger) Clone() Ledger {
	if l == nil {
		return nil
	}
	out := make(Ledger, len(l))
	copy(out, l)
	return out
}

// Last returns the tail entry
func (l Ledger) Last() (CommandResponse, bool) {
	if len(l) == 0 {
		return CommandResponse{}, false
	}
	return l[len(l)-1], true
}

// GoalStateFromLedger picks the goal state to display for a goal session.
// A target with commits wins; otherwise the tail entry's state is used if
// it has commits.
func GoalStateFromLedger(l Ledger, target *RepositoryState) *RepositoryState {
	if target.HasCommits() {
		return target
	}
	if last, ok := l.Last(); ok && last.RepositoryState.HasCommits() {
		return last.RepositoryState
	}
	return nil
}

// ScriptFromLedger extracts the domain commands of a ledger as a script
// numbered from 1
func ScriptFromLedger(l Ledger, isDomain func(string) bool) CommandScript {
	script := CommandScript{Steps: []ScriptStep{}}
	for _, resp := range l {
		if resp.Command == "" || !isDomain(resp.Command) {
			continue
		}
		order := len(script.Steps) + 1
		script.Steps = append(script.Steps, ScriptStep{Command: resp.Command, Order: &order})
	}
	return script
}

// PrefixMatcher returns a domain-command test for commands starting with prefix
func PrefixMatcher(prefix string) func(string) bool {
	return func(command string) bool {
		return command != "" && strings.HasPrefix(command, prefix)
	}
}
