package capture

// Phase is the single discrete state of the recording lifecycle.
type Phase int

const (
	// PhaseIdle means no cycle is running. It is both the initial and the
	// terminal phase.
	PhaseIdle Phase = iota

	// PhaseStarting means a session has been requested from the device but
	// the device has not acknowledged it yet.
	PhaseStarting

	// PhaseRecording means a session is live and capturing audio.
	PhaseRecording

	// PhaseStopping means the session is being torn down. A stop requested
	// during PhaseStarting moves here early and is carried out once the
	// session exists.
	PhaseStopping

	// PhaseTranscribing means the recorded audio is being transcribed.
	PhaseTranscribing
)

// String returns the lower-case phase name used in logs, metrics, and the
// HTTP API.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStarting:
		return "starting"
	case PhaseRecording:
		return "recording"
	case PhaseStopping:
		return "stopping"
	case PhaseTranscribing:
		return "transcribing"
	default:
		return "unknown"
	}
}

// State is a point-in-time snapshot of a [Controller].
type State struct {
	Phase      Phase
	RequestID  uint64
	Transcript string

	// IsRecording is true while the phase is Starting or Recording.
	IsRecording bool

	// IsProcessing is true while the phase is Stopping.
	IsProcessing bool

	// IsTranscribing is true while the phase is Transcribing.
	IsTranscribing bool
}

func newState(p Phase, id uint64, transcript string) State {
	return State{
		Phase:          p,
		RequestID:      id,
		Transcript:     transcript,
		IsRecording:    p == PhaseStarting || p == PhaseRecording,
		IsProcessing:   p == PhaseStopping,
		IsTranscribing: p == PhaseTranscribing,
	}
}
