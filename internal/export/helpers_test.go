package export

import (
	"github.com/iksnae/practice-sync/internal"
)

func sampleTranscript(id string) *Transcript {
	initState := internal.FakeRepositoryState()
	commitState := internal.FakeRepositoryState("git commit -m first")
	snap := internal.Snapshot{
		Identity: internal.PracticeSession(id),
		Source:   internal.SourceReplay,
		Ledger: internal.Ledger{
			{Command: "git init", Success: true, Output: "Initialized empty Git repository", RepositoryState: initState},
			{Command: "git commit -m first", Success: true, Output: "[main] first", RepositoryState: commitState},
			{Command: "git push", Success: false, Output: "fatal: no remote"},
		},
		Version:    3,
		HasVersion: true,
	}
	snap.CurrentState = internal.CurrentState(snap.Ledger)
	return NewTranscript(snap)
}
