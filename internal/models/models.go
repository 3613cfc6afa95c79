package models

import "time"

// Now is the current time in milliseconds, used for rule and config timestamps
func Now() int64 {
	return time.Now().UnixMilli()
}
