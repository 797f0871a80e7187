// internal/firmware/status.go
package firmware

// Status is the firmware update state machine position.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusValidating   Status = "validating"
	StatusValid        Status = "valid"
	StatusInvalid      Status = "invalid"
	StatusPreparing    Status = "preparing"
	StatusFlashing     Status = "flashing"
	StatusSuccess      Status = "success"
	StatusFailed       Status = "failed"
	StatusReconnecting Status = "reconnecting"
)

// Terminal reports whether the status ends an update attempt.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Busy reports whether an update is actively in flight.
func (s Status) Busy() bool {
	return s == StatusPreparing || s == StatusFlashing || s == StatusReconnecting
}
