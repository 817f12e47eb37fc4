package client

import "sync"

// Status is the user-visible upload state.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusConverting Status = "converting"
	StatusUploading  Status = "uploading"
	StatusGenerating Status = "generating"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// Event drives the status machine.
type Event string

const (
	EventSubmit      Event = "submit"
	EventConverted   Event = "converted"
	EventUploaded    Event = "uploaded"
	EventTranscribed Event = "transcribed"
	EventFail        Event = "fail"
	EventDismiss     Event = "dismiss"
)

// Transition is the pure state function. Unknown (state, event) pairs
// leave the state unchanged, so a stray event can never skip a step.
// Terminal states stay put until an explicit dismiss.
func Transition(s Status, e Event) Status {
	switch s {
	case StatusWaiting:
		if e == EventSubmit {
			return StatusConverting
		}
	case StatusConverting:
		switch e {
		case EventConverted:
			return StatusUploading
		case EventFail:
			return StatusError
		}
	case StatusUploading:
		switch e {
		case EventUploaded:
			return StatusGenerating
		case EventFail:
			return StatusError
		}
	case StatusGenerating:
		switch e {
		case EventTranscribed:
			return StatusSuccess
		case EventFail:
			return StatusError
		}
	case StatusSuccess, StatusError:
		if e == EventDismiss {
			return StatusWaiting
		}
	}
	return s
}

// StatusMessage is the fixed submit-button label for each state.
func StatusMessage(s Status) string {
	switch s {
	case StatusConverting:
		return "Converting..."
	case StatusUploading:
		return "Uploading..."
	case StatusGenerating:
		return "Transcribing..."
	case StatusSuccess:
		return "Success!"
	case StatusError:
		return "Upload failed"
	default:
		return "Upload video"
	}
}

// FormEnabled reports whether form controls accept input.
func FormEnabled(s Status) bool { return s == StatusWaiting }

// Machine wraps Transition with synchronized state and change
// notification for a single form instance.
type Machine struct {
	mu       sync.Mutex
	status   Status
	onChange func(Status)
}

// NewMachine starts in waiting. onChange may be nil and is invoked for
// every effective state change.
func NewMachine(onChange func(Status)) *Machine {
	if onChange == nil {
		onChange = func(Status) {}
	}
	return &Machine{status: StatusWaiting, onChange: onChange}
}

// TrySubmit feeds EventSubmit and reports whether it took effect. A
// machine outside waiting rejects the submission, so a second attempt
// cannot start while one is in flight or sits undismissed in a
// terminal state.
func (m *Machine) TrySubmit() bool {
	m.mu.Lock()
	next := Transition(m.status, EventSubmit)
	if next == m.status {
		m.mu.Unlock()
		return false
	}
	m.status = next
	m.mu.Unlock()
	m.onChange(next)
	return true
}

// Apply feeds one event and returns the resulting status.
func (m *Machine) Apply(e Event) Status {
	m.mu.Lock()
	next := Transition(m.status, e)
	changed := next != m.status
	m.status = next
	m.mu.Unlock()
	if changed {
		m.onChange(next)
	}
	return next
}

// Status returns the current state.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}
