// internal/telemetry/command.go
package telemetry

import (
	"fmt"
)

// Field is one key/value pair destined for the device. Readings are
// ordered slices so commands always go out in a stable order.
type Field struct {
	Key   string
	Value interface{}
}

// Reading is an ordered batch of fields produced by one category tick.
type Reading []Field

// FormatCommand renders one field as a device command line. Strings
// are quoted, floats carry two decimals, integers are bare; anything
// else is stringified and quoted.
func FormatCommand(key string, value interface{}) string {
	switch v := value.(type) {
	case string:
		return fmt.Sprintf("sys_set %s %q\n", key, v)
	case float64:
		return fmt.Sprintf("sys_set %s %.2f\n", key, v)
	case float32:
		return fmt.Sprintf("sys_set %s %.2f\n", key, v)
	case int:
		return fmt.Sprintf("sys_set %s %d\n", key, v)
	case int64:
		return fmt.Sprintf("sys_set %s %d\n", key, v)
	case uint64:
		return fmt.Sprintf("sys_set %s %d\n", key, v)
	case bool:
		if v {
			return fmt.Sprintf("sys_set %s %d\n", key, 1)
		}
		return fmt.Sprintf("sys_set %s %d\n", key, 0)
	default:
		return fmt.Sprintf("sys_set %s %q\n", key, fmt.Sprintf("%v", v))
	}
}
