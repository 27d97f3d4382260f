package process

import "time"

// Status is a point-in-time snapshot of one supervised child.
type Status struct {
	Name      string      `json:"name"`
	Running   bool        `json:"running"`
	PID       int         `json:"pid"`
	StartedAt time.Time   `json:"started_at"`
	StoppedAt time.Time   `json:"stopped_at"`
	Restarts  int         `json:"restarts"`
	State     string      `json:"state"` // stopped, starting, running, stopping, restarting
	LastExit  *ExitRecord `json:"last_exit,omitempty"`
}
