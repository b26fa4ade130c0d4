package service

// EventNotificationCompleted is published after every Notify fan-out.
const EventNotificationCompleted = "notification.completed"

// EventPublisher is the interface for publishing application events.
type EventPublisher interface {
	Publish(eventType string, payload map[string]string)
}
