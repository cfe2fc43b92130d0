package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// ProductionLogger is a self-contained, layered logger: JSON output
// under Kubernetes (or AGENTCORE_LOG_FORMAT=json), human-readable text
// otherwise, with rate-limited error logging to avoid flooding during
// cascading failures.
type ProductionLogger struct {
	level       string
	debug       bool
	component   string
	format      string
	output      io.Writer
	mu          sync.RWMutex
	errorWindow time.Duration
	lastError   time.Time
}

var (
	rootLogger     *ProductionLogger
	rootLoggerOnce sync.Once
)

// NewProductionLogger returns the process-wide singleton logger scoped
// to the given component. Configuration precedence: environment
// variables, then Kubernetes auto-detection, then defaults.
func NewProductionLogger(component string) *ProductionLogger {
	rootLoggerOnce.Do(func() {
		rootLogger = createProductionLogger(component)
	})
	if component == rootLogger.component {
		return rootLogger
	}
	clone := *rootLogger
	clone.component = component
	return &clone
}

func createProductionLogger(component string) *ProductionLogger {
	level := os.Getenv("AGENTCORE_LOG_LEVEL")
	if level == "" {
		level = "INFO"
	}
	debug := os.Getenv("AGENTCORE_DEBUG") == "true" || strings.ToUpper(level) == "DEBUG"

	format := "text"
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		format = "json"
	}
	if f := os.Getenv("AGENTCORE_LOG_FORMAT"); f != "" {
		format = f
	}

	return &ProductionLogger{
		level:       strings.ToUpper(level),
		debug:       debug,
		component:   component,
		format:      format,
		output:      os.Stdout,
		errorWindow: time.Second,
	}
}

// WithComponent returns a logger sharing configuration but tagged with
// a different component name.
func (l *ProductionLogger) WithComponent(component string) Logger {
	l.mu.RLock()
	clone := *l
	l.mu.RUnlock()
	clone.component = component
	return &clone
}

func (l *ProductionLogger) Info(msg string, fields map[string]interface{})  { l.log("INFO", msg, fields) }
func (l *ProductionLogger) Warn(msg string, fields map[string]interface{})  { l.log("WARN", msg, fields) }
func (l *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if !l.debug {
		return
	}
	l.log("DEBUG", msg, fields)
}

func (l *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	l.mu.Lock()
	now := time.Now()
	if now.Sub(l.lastError) < l.errorWindow {
		l.mu.Unlock()
		return
	}
	l.lastError = now
	l.mu.Unlock()
	l.log("ERROR", msg, fields)
}

func (l *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("INFO", msg, withTraceFields(ctx, fields))
}
func (l *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Error(msg, withTraceFields(ctx, fields))
}
func (l *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("WARN", msg, withTraceFields(ctx, fields))
}
func (l *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if !l.debug {
		return
	}
	l.log("DEBUG", msg, withTraceFields(ctx, fields))
}

func withTraceFields(ctx context.Context, fields map[string]interface{}) map[string]interface{} {
	return fields
}

func (l *ProductionLogger) log(level, msg string, fields map[string]interface{}) {
	l.mu.RLock()
	format, comp := l.format, l.component
	l.mu.RUnlock()

	if !l.shouldLog(level) {
		return
	}

	ts := time.Now().Format(time.RFC3339)
	if format == "json" {
		entry := map[string]interface{}{
			"timestamp": ts,
			"level":     level,
			"component": comp,
			"message":   msg,
		}
		for k, v := range fields {
			if _, reserved := entry[k]; !reserved {
				entry[k] = v
			}
		}
		if data, err := json.Marshal(entry); err == nil {
			fmt.Fprintln(l.output, string(data))
		}
		return
	}

	var b strings.Builder
	for k, v := range fields {
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	fmt.Fprintf(l.output, "%s [%s] [%s] %s%s\n", ts, level, comp, msg, b.String())
}

func (l *ProductionLogger) shouldLog(level string) bool {
	ranks := map[string]int{"DEBUG": 0, "INFO": 1, "WARN": 2, "ERROR": 3}
	cur, ok1 := ranks[l.level]
	msg, ok2 := ranks[level]
	if !ok1 || !ok2 {
		return true
	}
	return msg >= cur
}
