package domain

import "time"

type EventType string

const (
	EventDiscovered   EventType = "discovered"
	EventUpdated      EventType = "updated"
	EventRemoved      EventType = "removed"
	EventConfigError  EventType = "config_error"
	EventStarted      EventType = "started"
	EventCompleted    EventType = "completed"
	EventFailed       EventType = "failed"
	EventSkipped      EventType = "skipped"
	EventUploaded     EventType = "uploaded"
	EventUploadFailed EventType = "upload_failed"
	EventRetention    EventType = "retention"
	EventHalted       EventType = "halted"
)

type Event struct {
	Timestamp      time.Time `json:"timestamp"`
	Type           EventType `json:"type"`
	ContainerName  string    `json:"container_name,omitempty"`
	TargetType     string    `json:"target_type,omitempty"`
	TargetInstance string    `json:"target_instance,omitempty"`
	Message        string    `json:"message,omitempty"`
}
