package queue

import "fmt"

// State is where the active file is in its life cycle.
type State int

const (
	Idle State = iota
	Editing
	// EditCancelled: the user dismissed the editor; the file is dropped.
	EditCancelled
	Skipped
	Confirmed
	Uploading
	Succeeded
	Aborted
	Failed
	// UploadCancelled: the user cancelled during the upload.
	UploadCancelled
)

var stateNames = [...]string{
	Idle:            "idle",
	Editing:         "editing",
	EditCancelled:   "edit-cancelled",
	Skipped:         "skipped",
	Confirmed:       "confirmed",
	Uploading:       "uploading",
	Succeeded:       "succeeded",
	Aborted:         "aborted",
	Failed:          "failed",
	UploadCancelled: "upload-cancelled",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var transitions = map[State][]State{
	Idle:            {Editing},
	Editing:         {EditCancelled, Skipped, Confirmed},
	EditCancelled:   {Idle, Editing},
	Skipped:         {Uploading},
	Confirmed:       {Uploading},
	Uploading:       {Succeeded, Aborted, Failed, UploadCancelled},
	Succeeded:       {Idle, Editing},
	Aborted:         {Idle, Editing},
	Failed:          {Idle, Editing},
	UploadCancelled: {Idle, Editing},
}

// CanTransition reports whether from -> to is a legal step. Any state may
// drop to Idle through CancelAll, which bypasses this table.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// advancesOnClose reports whether closing the editor in state s is what
// moves the queue on. For skip and confirm the upload's completion does it
// instead, so each file advances the queue exactly once.
func advancesOnClose(s State) bool {
	return s == EditCancelled
}
