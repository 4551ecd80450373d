package ids

import "github.com/segmentio/ksuid"

// New returns a time-sortable identifier for locally tracked generation tasks.
func New() string {
	return ksuid.New().String()
}
