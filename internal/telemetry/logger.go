package telemetry

import (
	"os"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// JSONLogger writes one JSON object per event. A logger built with an empty
// path discards everything.
type JSONLogger struct {
	z *zap.Logger
	f *os.File
}

func NewJSONLogger(path string) (*JSONLogger, error) {
	if path == "" {
		return &JSONLogger{z: zap.NewNop()}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.MessageKey = "msg"
	enc.LevelKey = "level"
	enc.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	enc.CallerKey = ""
	enc.StacktraceKey = ""
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(f), zapcore.DebugLevel)
	return &JSONLogger{z: zap.New(core), f: f}, nil
}

func (l *JSONLogger) Info(msg string, fields map[string]any) {
	if l == nil || l.z == nil {
		return
	}
	l.z.Info(msg, toFields(fields)...)
}

func (l *JSONLogger) Error(msg string, fields map[string]any) {
	if l == nil || l.z == nil {
		return
	}
	l.z.Error(msg, toFields(fields)...)
}

func (l *JSONLogger) Close() error {
	if l == nil || l.z == nil {
		return nil
	}
	_ = l.z.Sync()
	if l.f == nil {
		return nil
	}
	return l.f.Close()
}

func toFields(fields map[string]any) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}
