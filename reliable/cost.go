package reliable

import (
	"strconv"

	"github.com/PipeOpsHQ/airos/storage"
)

// repairOverheadTokens approximates the fixed prompt scaffolding of one
// repair call.
const repairOverheadTokens = 100

var defaultPrice, _ = strconv.ParseFloat(storage.DefaultSettings[storage.SettingCostPerToken], 64)

// estimateTokens approximates token usage as one token per four bytes of
// the value's text form.
func estimateTokens(v any) int {
	return len(stringify(v)) / 4
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case error:
		return val.Error()
	}
	return string(storage.EncodeState(v))
}
