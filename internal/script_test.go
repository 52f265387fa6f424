package internal

import (
	"bytes"
	"strings"
	"testing"

	"github.com/iksnae/practice-sync/testutil"
)

func TestLoadScript(t *testing.T) {
	dir := testutil.CreateTempDir(t)
	path := testutil.WriteScriptFixture(t, dir, "goal.yaml", testutil.GoalScriptYAML)

	script, err := LoadScript(path)
	if err != nil {
		t.Fatalf("LoadScript() error = %v", err)
	}
	if script.Len() != 4 || !script.HasTarget() {
		t.Errorf("Len() = %d, HasTarget() = %v", script.Len(), script.HasTarget())
	}
	if script.Steps[0].Command != "git commit -m second" || script.Steps[0].OrderValue() != 3 {
		t.Errorf("file order should be kept until replay, got %s", script.Steps[0])
	}
	if script.Steps[1].ExpectedOutput != "Initialized empty Git repository" {
		t.Errorf("ExpectedOutput = %q", script.Steps[1].ExpectedOutput)
	}

	if _, err := LoadScript(dir + "/missing.yaml"); err == nil {
		t.Error("LoadScript() of a missing file should fail")
	}
}

func TestParseScript(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		steps   int
		wantErr bool
	}{
		{"empty document", "", 0, false},
		{"json", `{"commands":[{"command":"git init","order":1}]}`, 1, false},
		{"unknown field", "commands:\n  - command: git init\n    delay: 3\n", 0, true},
		{"missing command", "commands:\n  - order: 1\n", 0, true},
		{"not a script", "- a\n- b\n", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script, err := ParseScript(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseScript() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && script.Len() != tt.steps {
				t.Errorf("Len() = %d, want %d", script.Len(), tt.steps)
			}
		})
	}
}

func TestWriteScript(t *testing.T) {
	one := 1
	script := CommandScript{
		TargetState: FakeRepositoryState("x"),
		Steps:       []ScriptStep{{Command: "git init", Order: &one, ExpectedOutput: "ok"}},
	}

	var buf bytes.Buffer
	if err := WriteScript(&buf, script); err != nil {
		t.Fatalf("WriteScript() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"target_state:", "commands:", "command: git init", "expected_output: ok"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	parsed, err := ParseScript(&buf)
	if err != nil {
		t.Fatalf("ParseScript() of written script error = %v", err)
	}
	if !parsed.TargetState.Equal(script.TargetState) || parsed.Steps[0].OrderValue() != 1 {
		t.Errorf("parsed = %+v", parsed)
	}
}
