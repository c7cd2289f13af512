// Package log provides the leveled logging interface used by graphrag.
//
// Every component accepts a Logger; when none is given the package-level
// logger is used. Three implementations are included:
//
//   - DefaultLogger: Go's standard log package with a "[graphrag] " prefix
//   - GologLogger: github.com/kataras/golog
//   - ZapLogger: go.uber.org/zap, for JSON output in production
//
// Example:
//
//	log.SetDefaultLogger(log.NewGolog(log.LogLevelDebug))
//	log.Info("ingested %d documents", n)
//
// Messages are printf-style format strings.
package log
