package insight

import (
	"encoding/json"
	"fmt"
)

const (
	// Instruction prefixes every prompt.
	Instruction = "Analyze these time logs and give me a 1 sentence encouragement:"

	// FallbackText is returned whenever generation fails.
	FallbackText = "Keep going! You're doing great."
)

// BuildPrompt serializes records after the fixed instruction.
func BuildPrompt(records []any) (string, error) {
	if records == nil {
		records = []any{}
	}

	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("failed to serialize records: %w", err)
	}

	return Instruction + " " + string(data), nil
}
