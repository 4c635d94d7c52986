package core

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// ProductionLogger is the standard Logger implementation: structured JSON in
// Kubernetes (for log aggregation), human-readable text locally.
//
// Configuration priority:
//  1. Explicit LoggingConfig values (highest)
//  2. Environment variables (PAPERSPINE_LOG_LEVEL, PAPERSPINE_LOG_FORMAT)
//  3. Auto-detection (K8s environment)
//  4. Defaults (lowest)
type ProductionLogger struct {
	level       int
	format      string
	serviceName string
	output      io.Writer
	mu          sync.Mutex
}

const (
	levelDebug = iota
	levelInfo
	levelWarn
	levelError
)

func parseLevel(s string) int {
	switch strings.ToLower(s) {
	case "debug":
		return levelDebug
	case "warn", "warning":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// NewProductionLogger creates a logger for the given service name.
func NewProductionLogger(cfg LoggingConfig, serviceName string) *ProductionLogger {
	level := cfg.Level
	if level == "" {
		level = os.Getenv("PAPERSPINE_LOG_LEVEL")
	}

	format := cfg.Format
	if format == "" {
		format = os.Getenv("PAPERSPINE_LOG_FORMAT")
	}
	if format == "" {
		format = "text"
		if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
			format = "json"
		}
	}

	return &ProductionLogger{
		level:       parseLevel(level),
		format:      format,
		serviceName: serviceName,
		output:      os.Stdout,
	}
}

func (l *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	l.log(levelDebug, "DEBUG", msg, fields)
}

func (l *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	l.log(levelInfo, "INFO", msg, fields)
}

func (l *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	l.log(levelWarn, "WARN", msg, fields)
}

func (l *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	l.log(levelError, "ERROR", msg, fields)
}

func (l *ProductionLogger) log(level int, label, msg string, fields map[string]interface{}) {
	if level < l.level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.format == "json" {
		entry := make(map[string]interface{}, len(fields)+4)
		for k, v := range fields {
			entry[k] = v
		}
		entry["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
		entry["level"] = label
		entry["service"] = l.serviceName
		entry["message"] = msg

		data, err := json.Marshal(entry)
		if err != nil {
			fmt.Fprintf(l.output, "%s [%s] %s (unserializable fields: %v)\n",
				time.Now().UTC().Format(time.RFC3339), label, msg, err)
			return
		}
		fmt.Fprintln(l.output, string(data))
		return
	}

	// Text format: stable field ordering for readability
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s: %s", time.Now().Format("15:04:05.000"), label, l.serviceName, msg)
	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, fields[k])
		}
	}
	fmt.Fprintln(l.output, b.String())
}

// SetOutput redirects log output; used in tests.
func (l *ProductionLogger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
}
