package medic

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SystemPrompt is sent as the system instruction by provider-backed repair
// capabilities.
const SystemPrompt = "You are the air-os Medic. Your job is to fix a failed agent node. Return ONLY JSON."

// BuildPrompt renders the repair request for req.
func BuildPrompt(req Request) (string, error) {
	errText := "unknown error"
	if req.Err != nil {
		errText = req.Err.Error()
	}

	var b strings.Builder
	b.WriteString("SYSTEM: You are the air-os Medic. Your job is to fix a failed agent node.\n")
	fmt.Fprintf(&b, "CONTEXT: The node '%s' failed with the following error: %s\n", req.NodeID, errText)
	fmt.Fprintf(&b, "INPUT DATA: %s\n", render(req.InputState))
	fmt.Fprintf(&b, "PREVIOUS OUTPUT: %s\n", render(req.RawOutput))
	if len(req.Schema) > 0 {
		raw, err := json.MarshalIndent(req.Schema, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode output schema: %w", err)
		}
		fmt.Fprintf(&b, "REQUIRED OUTPUT SCHEMA (JSON Schema):\n%s\n", raw)
	}
	b.WriteString("\nINSTRUCTION: Identify the mistake in the previous output. Correct the schema or logic to satisfy the requirements. ")
	b.WriteString("Return ONLY the corrected JSON. Do not explain your thought process.\n")
	return b.String(), nil
}

func render(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case json.RawMessage:
		return string(val)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}
