package store

import (
	"sync/atomic"
	"time"
)

var lastMillis int64

// monotonicMillis returns the current unix-milli time, bumped forward when
// two mutations land within the same millisecond. Change events ordered by
// Time then never tie, which keeps last-write-wins replay deterministic.
func monotonicMillis() int64 {
	for {
		now := time.Now().UnixMilli()
		last := atomic.LoadInt64(&lastMillis)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastMillis, last, now) {
			return now
		}
	}
}
