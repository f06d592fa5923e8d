package reliable

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DefaultRunID is used when the call configuration names no run.
const DefaultRunID = "local_dev_run"

// RunConfig is the per-call configuration a graph runtime hands to a node.
// Graph runtimes usually nest thread or session identifiers under
// "configurable".
type RunConfig map[string]any

// RunID resolves the run identifier: an explicit "run_id" wins, then
// configurable.thread_id, then configurable.session_id, then DefaultRunID.
func (c RunConfig) RunID() string {
	if id := stringValue(c["run_id"]); id != "" {
		return id
	}
	nested := c.Configurable()
	for _, key := range []string{"thread_id", "session_id"} {
		if id := stringValue(nested[key]); id != "" {
			return id
		}
	}
	return DefaultRunID
}

// Configurable returns the nested "configurable" mapping, or nil.
func (c RunConfig) Configurable() map[string]any {
	switch nested := c["configurable"].(type) {
	case map[string]any:
		return nested
	case RunConfig:
		return nested
	case map[string]string:
		out := make(map[string]any, len(nested))
		for k, v := range nested {
			out[k] = v
		}
		return out
	}
	return nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	case int, int32, int64, uint, uint32, uint64:
		return fmt.Sprintf("%d", val)
	}
	return ""
}
