package messenger

import (
	"encoding/json"
	"fmt"
)

func encodePayload(payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataClone, err)
	}
	return data, nil
}

func decodePayload(data []byte) (any, error) {
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataClone, err)
	}
	return payload, nil
}

// structuredClone copies a payload across a channel boundary. The receiver
// gets a structurally equal value, never the sender's reference.
func structuredClone(payload any) (any, error) {
	data, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}
	return decodePayload(data)
}
