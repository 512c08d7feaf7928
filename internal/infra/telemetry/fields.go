package telemetry

import (
	"time"

	"go.uber.org/zap"
)

const (
	FieldLogSource      = "logSource"
	FieldLogStream      = "logStream"
	LogSourceCore       = "core"
	LogSourceDownstream = "downstream"
)

func EntryField(entryID string) zap.Field {
	return zap.String("entry", entryID)
}

func PrefixField(prefix string) zap.Field {
	return zap.String("prefix", prefix)
}

func HandleField(handle string) zap.Field {
	return zap.String("handle", handle)
}

func ToolField(name string) zap.Field {
	return zap.String("tool", name)
}

func SourceField(source string) zap.Field {
	return zap.String("source", source)
}

func DurationField(d time.Duration) zap.Field {
	return zap.Duration("duration", d)
}
