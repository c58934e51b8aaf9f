package applier

import "strconv"

func strPtr(s string) *string { return &s }

func timestampString(ts uint64) string {
	return strconv.FormatUint(ts, 10)
}
