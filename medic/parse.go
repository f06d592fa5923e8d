package medic

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const fence = "```"

var ErrEmptyRepair = errors.New("repair response is empty")

// StripFences extracts the body of the first markdown code fence in text.
// A json-tagged fence wins over an untagged one; text without fences is
// returned trimmed.
func StripFences(text string) string {
	if i := strings.Index(text, fence+"json"); i >= 0 {
		return untilFence(text[i+len(fence)+len("json"):])
	}
	if i := strings.Index(text, fence); i >= 0 {
		body := text[i+len(fence):]
		// An untagged fence may still carry a language tag on its first line.
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			tag := strings.TrimSpace(body[:nl])
			if tag != "" && !strings.ContainsAny(tag, "{[\"") {
				body = body[nl+1:]
			}
		}
		return untilFence(body)
	}
	return strings.TrimSpace(text)
}

func untilFence(s string) string {
	if j := strings.Index(s, fence); j >= 0 {
		s = s[:j]
	}
	return strings.TrimSpace(s)
}

// ParseRepair strips fences from a repair response and decodes the JSON
// payload.
func ParseRepair(text string) (any, error) {
	cleaned := StripFences(text)
	if cleaned == "" {
		return nil, ErrEmptyRepair
	}
	var out any
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return nil, fmt.Errorf("failed to parse repair response as JSON: %w", err)
	}
	return out, nil
}
