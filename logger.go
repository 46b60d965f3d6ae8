package pagecache

// Fields carries structured context for one log line.
type Fields map[string]any

// Logger receives the pager's log lines. Adapters for logrus, zap and slog
// live under log/. A nil Options.Logger discards everything.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}

// fields tags a line with the pager namespace and prefix; kv holds
// alternating keys and values.
func (p *pager[T]) fields(prefix string, kv ...any) Fields {
	f := make(Fields, 2+len(kv)/2)
	f["ns"], f["prefix"] = p.ns, prefix
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			f[k] = kv[i+1]
		}
	}
	return f
}
