package mcp

import (
	"encoding/json"
	"fmt"
)

func unmarshalParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing params")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid params: %v", err)
	}
	return nil
}

// DecodeArguments decodes tool call arguments into a typed struct.
// Handlers use this instead of touching raw JSON.
func DecodeArguments(args []byte, v interface{}) error {
	if len(args) == 0 {
		return fmt.Errorf("missing arguments")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %v", err)
	}
	return nil
}
