package pipeline

// State is the phase a Coordinator is in while running a job.
type State int

const (
	Idle State = iota
	WorkAvailable
	WorkersRunning
	WorkersDone
	WriterRunning
	WriterDone
	Terminated
)

var stateNames = [...]string{
	Idle:           "idle",
	WorkAvailable:  "work-available",
	WorkersRunning: "workers-running",
	WorkersDone:    "workers-done",
	WriterRunning:  "writer-running",
	WriterDone:     "writer-done",
	Terminated:     "terminated",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
