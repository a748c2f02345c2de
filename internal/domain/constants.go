package domain

// Status is the persisted state of a conversion job
type Status string

// Job status constants
const (
	StatusWaiting    Status = "waiting"
	StatusProcessing Status = "processing"
	StatusConverted  Status = "converted"
	StatusFinished   Status = "finished"
	StatusError      Status = "error"
)

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusProcessing, StatusConverted, StatusFinished, StatusError:
		return true
	}
	return false
}

// Terminal reports whether no further transition is expected from s
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusError
}

// Content block types
const (
	BlockTypeText = "text"
)
