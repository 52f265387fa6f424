package export

import (
	"fmt"
	"io"
	"time"

	"github.com/iksnae/practice-sync/internal"
)

// Transcript is the exported form of one session's ledger
type Transcript struct {
	Session    string                    `json:"session" yaml:"session"`
	Kind       internal.SessionKind      `json:"kind" yaml:"kind"`
	Version    *int64                    `json:"version,omitempty" yaml:"version,omitempty"`
	Source     string                    `json:"source,omitempty" yaml:"source,omitempty"`
	ExportedAt time.Time                 `json:"exportedAt" yaml:"exported_at"`
	Current    *internal.RepositoryState `json:"currentState" yaml:"current_state"`
	Entries    internal.Ledger           `json:"entries" yaml:"entries"`
}

// NewTranscript builds a transcript from a session snapshot
func NewTranscript(snap internal.Snapshot) *Transcript {
	t := &Transcript{
		Session:    snap.Identity.StorageID(),
		Kind:       snap.Identity.Kind,
		Source:     string(snap.Source),
		ExportedAt: time.Now().UTC(),
		Current:    snap.CurrentState,
		Entries:    snap.Ledger.Clone(),
	}
	if snap.HasVersion {
		v := snap.Version
		t.Version = &v
	} else if snap.Identity.Version != nil {
		v := *snap.Identity.Version
		t.Version = &v
	}
	if t.Entries == nil {
		t.Entries = internal.Ledger{}
	}
	return t
}

// Exporter defines the interface for all export formats
type Exporter interface {
	Export(t *Transcript, w io.Writer) error
	Extension() string
}

// NewExporter creates a new exporter based on format
func NewExporter(format string) (Exporter, error) {
	switch format {
	case "jsonl":
		return &JSONLExporter{}, nil
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	case "yaml":
		return &YAMLExporter{}, nil
	case "json":
		return &JSONExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: jsonl, md, yaml, json)", format)
	}
}
