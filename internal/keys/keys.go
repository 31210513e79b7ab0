package keys

import (
	"fmt"
	"strconv"
)

// Join returns prefix ++ id. Integers and strings are formatted directly;
// anything else goes through fmt (so fmt.Stringer is honored).
func Join[ID any](prefix string, id ID) string {
	switch v := any(id).(type) {
	case string:
		return prefix + v
	case int:
		return prefix + strconv.Itoa(v)
	case int64:
		return prefix + strconv.FormatInt(v, 10)
	case int32:
		return prefix + strconv.FormatInt(int64(v), 10)
	case uint:
		return prefix + strconv.FormatUint(uint64(v), 10)
	case uint64:
		return prefix + strconv.FormatUint(v, 10)
	case uint32:
		return prefix + strconv.FormatUint(uint64(v), 10)
	case fmt.Stringer:
		return prefix + v.String()
	default:
		return prefix + fmt.Sprint(v)
	}
}
