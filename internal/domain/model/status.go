package model

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of an improvement plan.
type Status uint8

// Plan statuses. Zero is not a valid status.
const (
	StatusOpen       Status = 1
	StatusInProgress Status = 2
	StatusCompleted  Status = 3
	StatusCancelled  Status = 4
)

var statusNames = map[Status]string{
	StatusOpen:       "open",
	StatusInProgress: "in_progress",
	StatusCompleted:  "completed",
	StatusCancelled:  "cancelled",
}

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// ParseStatus accepts either the status name or its numeric code.
func ParseStatus(v string) (Status, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	for s, name := range statusNames {
		if v == name || v == fmt.Sprint(uint8(s)) {
			return s, nil
		}
	}
	return 0, Errorf("model.parse_status", ErrInvalidArgument, "unknown status %q", v)
}
