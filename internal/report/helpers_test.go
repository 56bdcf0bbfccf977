package report

type captureLogger struct{ debugs, infos, warns, errors int }

func (l *captureLogger) Debug(string, ...any) { l.debugs++ }
func (l *captureLogger) Info(string, ...any)  { l.infos++ }
func (l *captureLogger) Warn(string, ...any)  { l.warns++ }
func (l *captureLogger) Error(string, ...any) { l.errors++ }
