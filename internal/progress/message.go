package progress

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Message is one progress update read from a job socket.
type Message struct {
	// Progress is the completion percentage, 0 to 100.
	Progress float64 `json:"progress"`
	// Total and Done are nil until the backend reports them.
	Total *int `json:"total,omitempty"`
	Done  *int `json:"done,omitempty"`
	// Finished is set by the literal "done" sentinel on index sockets.
	Finished bool `json:"-"`
}

// Complete reports whether the message marks the end of the job.
func (m Message) Complete() bool {
	return m.Finished || m.Progress >= 100
}

const messageSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"progress": {"type": "number", "minimum": 0, "maximum": 100},
		"total": {"type": ["integer", "null"], "minimum": 0},
		"done": {"type": ["integer", "null"], "minimum": 0}
	},
	"required": ["progress"]
}`

var compiledMessageSchema = jsonschema.MustCompileString("progress-message.json", messageSchema)

// Parse decodes a raw socket frame. The bare or quoted string "done" is the
// completion sentinel; anything else must be a progress object.
func Parse(data []byte) (Message, error) {
	text := strings.TrimSpace(string(data))
	if text == "done" || text == `"done"` {
		return Message{Progress: 100, Finished: true}, nil
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return Message{}, fmt.Errorf("failed to decode progress message: %w", err)
	}
	if err := compiledMessageSchema.Validate(doc); err != nil {
		return Message{}, fmt.Errorf("invalid progress message: %w", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("failed to decode progress message: %w", err)
	}
	return msg, nil
}
