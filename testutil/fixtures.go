package testutil

import (
	"testing"
)

// GoalScriptYAML is a command script whose steps are deliberately listed
// out of order and whose target state holds two commits
const GoalScriptYAML = `target_state:
  commits:
    - id: c1
      message: git commit -m first
    - id: c2
      message: git commit -m second
  head: main
commands:
  - command: git commit -m second
    order: 3
    expected_output: "[main] second"
  - command: git init
    order: 1
    expected_output: Initialized empty Git repository
  - command: explain the staging area
    order: 2
    expected_output: The index holds the next commit.
  - command: git commit -m first
    order: 2
    expected_output: "[main] first"
`

// MockFallbackScriptYAML is the three-step script used to check the
// synthesized ledger produced when the execution service is down
const MockFallbackScriptYAML = `target_state:
  commits:
    - id: t1
      message: target
commands:
  - command: git init
  - command: git commit -m x
    expected_output: committed
  - command: status note
    expected_output: n/a
`

// WriteScriptFixture writes a script into dir and returns its path
func WriteScriptFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	return WriteFile(t, dir, name, []byte(content))
}
