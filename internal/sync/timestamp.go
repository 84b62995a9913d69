package sync

import (
	"strconv"
	"time"

	"go.uber.org/zap"
)

func secondsToMillis(sec int64) int64 {
	return sec * 1000
}

// normalizeTimestamp converts a bridge timestamp into epoch
// milliseconds. The bridge usually reports epoch seconds as a number;
// anything else gets a best-effort parse, and on failure the current
// time is substituted and the failure logged, never raised.
func (e *Engine) normalizeTimestamp(v any) int64 {
	switch t := v.(type) {
	case int64:
		if t > 0 {
			return secondsToMillis(t)
		}
	case int:
		if t > 0 {
			return secondsToMillis(int64(t))
		}
	case float64:
		if t > 0 {
			return int64(t * 1000)
		}
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil && n > 0 {
			return secondsToMillis(n)
		}
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed.UnixMilli()
		}
		e.logger.Warn("unparsable message timestamp", zap.String("value", t))
		return e.now().UnixMilli()
	}
	if v != nil {
		e.logger.Warn("unparsable message timestamp", zap.Any("value", v))
	}
	return e.now().UnixMilli()
}
