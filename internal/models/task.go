package models

import "time"

type Vendor string

const (
	VendorVolcengine Vendor = "volcengine"
	VendorDashScope  Vendor = "dashscope"
	VendorArk        Vendor = "ark"
)

type TaskKind string

const (
	TaskKindImage        TaskKind = "image"
	TaskKindVideo        TaskKind = "video"
	TaskKindImageToVideo TaskKind = "image_to_video"
)

// MediaType reports which catalog directory the kind's artifacts land in.
func (k TaskKind) MediaType() MediaType {
	if k == TaskKindImage {
		return MediaTypeImage
	}
	return MediaTypeVideo
}

type TaskStatus string

const (
	TaskStatusPending  TaskStatus = "pending"
	TaskStatusRunning  TaskStatus = "running"
	TaskStatusDone     TaskStatus = "done"
	TaskStatusFailed   TaskStatus = "failed"
	TaskStatusTimedOut TaskStatus = "timed_out"
)

func (s TaskStatus) Terminal() bool {
	return s == TaskStatusDone || s == TaskStatusFailed || s == TaskStatusTimedOut
}

// GenerationTask lives for a single request. Only the poll loop mutates it.
type GenerationTask struct {
	ID          string
	TaskID      string
	Vendor      Vendor
	Kind        TaskKind
	SubmittedAt time.Time
	Status      TaskStatus
	Attempts    int
	Message     string
}
