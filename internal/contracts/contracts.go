// Package contracts defines the payload shapes exchanged over the invoke
// endpoint. Field names follow the camelCase JSON used by callers.
package contracts

import "fmt"

// Method names accepted by the invoke endpoint.
const (
	MethodSubscribe   = "Subscribe"
	MethodUnsubscribe = "Unsubscribe"
	MethodNotify      = "Notify"
)

// Status is the outcome carried by every Response.
type Status int

const (
	StatusSuccessful Status = iota
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccessful:
		return "Successful"
	case StatusFailure:
		return "Failure"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	switch s {
	case StatusSuccessful, StatusFailure:
		return []byte(s.String()), nil
	}
	return nil, fmt.Errorf("unknown status %d", int(s))
}

// UnmarshalText accepts the status name.
func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "Successful":
		*s = StatusSuccessful
	case "Failure":
		*s = StatusFailure
	default:
		return fmt.Errorf("unknown status %q", string(b))
	}
	return nil
}

// Response is returned by every method.
type Response struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// Succeeded builds a Successful response.
func Succeeded(format string, args ...any) Response {
	return Response{Status: StatusSuccessful, Message: fmt.Sprintf(format, args...)}
}

// Failed builds a Failure response.
func Failed(format string, args ...any) Response {
	return Response{Status: StatusFailure, Message: fmt.Sprintf(format, args...)}
}

// SubscribeRequest registers or renames a subscriber.
type SubscribeRequest struct {
	Address     string `json:"address"`
	DisplayName string `json:"displayName"`
}

// UnsubscribeRequest removes a subscriber.
type UnsubscribeRequest struct {
	Address string `json:"address"`
}

// Subscriber is one recipient in a NotifyRequest.
type Subscriber struct {
	Address     string `json:"address"`
	DisplayName string `json:"displayName"`
}

// Payload is the content delivered to every subscriber.
type Payload struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NotifyRequest asks for one message per subscriber. When Subscribers is empty
// the service resolves the recipients itself.
type NotifyRequest struct {
	Subscribers []Subscriber `json:"subscribers,omitempty"`
	Payload     Payload      `json:"payload"`
}
