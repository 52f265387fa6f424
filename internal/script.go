package internal

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadScript reads a command script from a YAML (or JSON) file
func LoadScript(path string) (*CommandScript, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open script: %w", err)
	}
	defer f.Close()
	return ParseScript(f)
}

// ParseScript decodes a command script. Steps without a command are rejected.
func ParseScript(r io.Reader) (*CommandScript, error) {
	var script CommandScript
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&script); err != nil {
		if err == io.EOF {
			return &CommandScript{}, nil
		}
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}

	for i, step := range script.Steps {
		if step.Command == "" {
			return nil, fmt.Errorf("script step %d has no command", i+1)
		}
	}
	return &script, nil
}

// WriteScript encodes a script as YAML
func WriteScript(w io.Writer, script CommandScript) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()
	return enc.Encode(script)
}
