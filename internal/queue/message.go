package queue

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Message is one document-extraction request as delivered on the queue.
// Tenant/customer/project identifiers are propagated, never interpreted here.
type Message struct {
	JobID         string `json:"jobId"`
	SourceLocator string `json:"sourceLocator"`
	UserID        string `json:"userId"`
	TenantID      string `json:"tenantId"`
	CustomerID    string `json:"customerId,omitempty"`
	ProjectID     string `json:"projectId,omitempty"`
	Filename      string `json:"filename"`
	Version       int    `json:"version"`
}

const messageSchema = `{
	"type": "object",
	"required": ["jobId", "sourceLocator", "userId", "tenantId", "filename", "version"],
	"properties": {
		"jobId":         {"type": "string", "minLength": 1},
		"sourceLocator": {"type": "string", "minLength": 1},
		"userId":        {"type": "string", "minLength": 1},
		"tenantId":      {"type": "string", "minLength": 1},
		"customerId":    {"type": "string"},
		"projectId":     {"type": "string"},
		"filename":      {"type": "string", "minLength": 1},
		"version":       {"type": "integer", "minimum": 1}
	}
}`

var compiledSchema = jsonschema.MustCompileString("queue-message.json", messageSchema)

// ParseMessage validates a raw queue payload against the message schema and
// decodes it. Malformed payloads fail here, before any pipeline work.
func ParseMessage(body []byte) (*Message, error) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := compiledSchema.Validate(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	msg.JobID = strings.TrimSpace(msg.JobID)
	msg.SourceLocator = strings.TrimSpace(msg.SourceLocator)
	msg.Filename = strings.TrimSpace(msg.Filename)
	msg.UserID = strings.TrimSpace(msg.UserID)
	msg.TenantID = strings.TrimSpace(msg.TenantID)
	if msg.JobID == "" || msg.SourceLocator == "" {
		return nil, fmt.Errorf("%w: blank jobId or sourceLocator", ErrInvalidMessage)
	}
	return &msg, nil
}

// Encode serializes the message for enqueueing.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}
