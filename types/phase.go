//nolint:revive // types is a common Go package naming convention
package types

import "strings"

// Phase represents the lifecycle phase of a background indexing task.
//
// The server reports phases at whatever granularity it has available;
// non-terminal phases may repeat or be skipped. Clients must not assume
// a fixed ordering beyond "queued first, terminal last".
type Phase string

// Phase constants as reported by the server.
const (
	PhaseQueued      Phase = "queued"
	PhasePending     Phase = "pending"
	PhaseDownloading Phase = "downloading"
	PhaseExtracting  Phase = "extracting"
	PhaseIndexing    Phase = "indexing"
	PhaseCompleted   Phase = "completed"
	PhaseSuccess     Phase = "success"
	PhaseFailure     Phase = "failure"
)

// IsTerminal returns true if the phase is a terminal phase.
// Once a task reaches a terminal phase it is sealed and never mutated again.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseSuccess || p == PhaseFailure
}

// Succeeded returns true for the success terminal phases.
func (p Phase) Succeeded() bool {
	return p == PhaseCompleted || p == PhaseSuccess
}

// Canonical collapses synonym phases: pending → queued, success → completed.
// All other phases are returned unchanged.
func (p Phase) Canonical() Phase {
	switch p {
	case PhasePending:
		return PhaseQueued
	case PhaseSuccess:
		return PhaseCompleted
	}
	return p
}

// NormalizePhase parses a server-reported phase string.
// Unknown strings are passed through verbatim: the tracker forwards
// whatever the server reports, it does not validate phase vocabulary.
func NormalizePhase(s string) Phase {
	return Phase(strings.ToLower(strings.TrimSpace(s))).Canonical()
}

// NormalizeStatus maps a polling-endpoint status string (QUEUED, STARTED,
// SUCCESS, FAILURE, ...) onto the phase enum.
func NormalizeStatus(s string) Phase {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SUCCESS":
		return PhaseCompleted
	case "FAILURE":
		return PhaseFailure
	case "QUEUED", "PENDING", "RECEIVED":
		return PhaseQueued
	case "STARTED", "PROGRESS":
		return PhaseIndexing
	default:
		return NormalizePhase(s)
	}
}

// phaseProgress holds the default percent-complete per phase, used when a
// progress report carries no explicit progress value. Values match the
// original client's phase map.
var phaseProgress = map[Phase]int{
	PhaseQueued:      5,
	PhasePending:     5,
	PhaseDownloading: 20,
	PhaseExtracting:  50,
	PhaseIndexing:    80,
	PhaseCompleted:   100,
	PhaseSuccess:     100,
	PhaseFailure:     0,
}

// DefaultProgress returns the default progress percentage for a phase.
// Unknown phases default to 50 (mid-flight).
func DefaultProgress(p Phase) int {
	if v, ok := phaseProgress[p]; ok {
		return v
	}
	return 50
}
