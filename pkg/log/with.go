package log

// With returns a Logger that prepends fields to every entry written
// through it.
func With(l Logger, fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	if w, ok := l.(*withLogger); ok {
		return &withLogger{base: w.base, fields: w.merge(fields)}
	}
	return &withLogger{base: l, fields: fields}
}

type withLogger struct {
	base   Logger
	fields []Field
}

func (w *withLogger) Debug(msg string, fields ...Field) { w.base.Debug(msg, w.merge(fields)...) }
func (w *withLogger) Info(msg string, fields ...Field)  { w.base.Info(msg, w.merge(fields)...) }
func (w *withLogger) Warn(msg string, fields ...Field)  { w.base.Warn(msg, w.merge(fields)...) }
func (w *withLogger) Error(msg string, fields ...Field) { w.base.Error(msg, w.merge(fields)...) }

func (w *withLogger) merge(fields []Field) []Field {
	out := make([]Field, 0, len(w.fields)+len(fields))
	out = append(out, w.fields...)
	return append(out, fields...)
}
