package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Fields type alias for logrus.Fields to maintain compatibility
type Fields map[string]interface{}

// Log wraps logrus.Logger with additional functionality
type Log struct {
	*logrus.Logger
}

// Entry wraps logrus.Entry with additional functionality
type Entry struct {
	*logrus.Entry
}

var globalLogger *Log

func init() {
	globalLogger = Logger()
}

func callerPrettyfier(f *runtime.Frame) (string, string) {
	return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
}

func jsonFormatter() *logrus.JSONFormatter {
	return &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
		CallerPrettyfier: callerPrettyfier,
	}
}

// Logger builds a new JSON logger honouring LOG_LEVEL.
func Logger() *Log {
	logger := logrus.New()
	logger.SetReportCaller(true)
	logger.SetLevel(logrus.InfoLevel)

	if env := strings.ToLower(os.Getenv("LOG_LEVEL")); env != "" && env != "report" {
		if lvl, err := logrus.ParseLevel(env); err == nil {
			logger.SetLevel(lvl)
		}
	}

	logger.SetFormatter(jsonFormatter())
	logger.AddHook(&redactHook{})
	logger.AddHook(&callerHook{})
	return &Log{Logger: logger}
}

func GetLogger() *Log {
	return globalLogger
}

func (l *Log) root() *Entry {
	return &Entry{Entry: logrus.NewEntry(l.Logger)}
}

func (l *Log) WithComponent(component string) *Entry { return l.root().WithComponent(component) }
func (l *Log) WithFields(fields Fields) *Entry       { return l.root().WithFields(fields) }
func (l *Log) WithError(err error) *Entry            { return l.root().WithError(err) }

// WithEnv attaches the named environment variables, as currently set, to the
// entry.
func (l *Log) WithEnv(names ...string) *Entry {
	fields := make(Fields, len(names))
	for _, name := range names {
		fields[name] = os.Getenv(name)
	}
	return l.WithFields(fields)
}

func (e *Entry) WithComponent(component string) *Entry {
	return &Entry{Entry: e.Entry.WithField("component", component)}
}

func (e *Entry) WithFields(fields Fields) *Entry {
	return &Entry{Entry: e.Entry.WithFields(logrus.Fields(fields))}
}

func (e *Entry) WithError(err error) *Entry {
	return &Entry{Entry: e.Entry.WithError(err)}
}

func (e *Entry) component() (string, bool) {
	c, ok := e.Entry.Data["component"].(string)
	return c, ok && c != ""
}

func (e *Entry) Info(args ...interface{})  { e.Entry.Info(args...) }
func (e *Entry) Debug(args ...interface{}) { e.Entry.Debug(args...) }

// Warn and Error feed the per-component counters shown in the runtime report.
func (e *Entry) Warn(args ...interface{}) {
	if c, ok := e.component(); ok {
		recordWarn(c)
	}
	e.Entry.Warn(args...)
}

func (e *Entry) Error(args ...interface{}) {
	if c, ok := e.component(); ok {
		recordError(c)
	}
	e.Entry.Error(args...)
}

// LogMetric writes a metric log line and publishes numeric values to CloudWatch.
// String fields become CloudWatch dimensions.
func (e *Entry) LogMetric(component string, metric string, value interface{}, metricType string, fields Fields) {
	if metricType == "" {
		metricType = "counter"
	}
	line := make(Fields, len(fields)+3)
	for k, v := range fields {
		line[k] = v
	}
	line["metric"], line["value"], line["metric_type"] = metric, value, metricType
	e.WithComponent(component).WithFields(line).Info("metric")

	if datum, ok := metricDatum(component, metric, value, metricType, fields); ok {
		publishMetrics(context.Background(), []cwtypes.MetricDatum{datum})
	}
}

func metricDatum(component, metric string, value interface{}, metricType string, fields Fields) (cwtypes.MetricDatum, bool) {
	val, ok := toFloat(value)
	if !ok {
		return cwtypes.MetricDatum{}, false
	}
	dims := []cwtypes.Dimension{{Name: aws.String("component"), Value: aws.String(component)}}
	for k, v := range fields {
		if s, isString := v.(string); isString {
			dims = append(dims, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(s)})
		}
	}
	unit := cwtypes.StandardUnitCount
	if metricType == "duration" {
		unit = cwtypes.StandardUnitMilliseconds
	}
	return cwtypes.MetricDatum{
		MetricName: aws.String(metric),
		Dimensions: dims,
		Unit:       unit,
		Value:      aws.Float64(val),
	}, true
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case time.Duration:
		return float64(v) / float64(time.Millisecond), true
	}
	return 0, false
}

// Configure applies level, format and output. LOG_LEVEL overrides level;
// "report" logs at info and enables the periodic runtime report in main.
func (l *Log) Configure(level string, format string, output string, maxAge int) error {
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = env
	}

	level = strings.ToLower(level)
	if level == "report" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level '%s'", level)
	}

	var formatter logrus.Formatter
	switch format {
	case "json", "":
		formatter = jsonFormatter()
	case "text":
		formatter = &logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  time.RFC3339,
			CallerPrettyfier: callerPrettyfier,
		}
	default:
		return fmt.Errorf("invalid log format '%s'", format)
	}

	w, err := openOutput(output, maxAge)
	if err != nil {
		return err
	}

	l.SetLevel(lvl)
	l.SetReportCaller(true)
	l.SetFormatter(formatter)
	l.SetOutput(w)
	return nil
}

// openOutput maps stdout/stderr to the process streams and anything else to a
// file, rotated by lumberjack when maxAge (days) is positive.
func openOutput(output string, maxAge int) (io.Writer, error) {
	switch output {
	case "stdout", "":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	if maxAge > 0 {
		return &lumberjack.Logger{
			Filename: output,
			MaxAge:   maxAge,
			MaxSize:  100,
			Compress: true,
		}, nil
	}
	file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file '%s': %w", output, err)
	}
	return file, nil
}

// LogPerformanceEntry records the duration of an operation on the given entry.
func LogPerformanceEntry(entry *Entry, component string, operation string, duration time.Duration, fields Fields) {
	if fields == nil {
		fields = make(Fields)
	}
	fields["duration_ms"] = float64(duration.Nanoseconds()) / 1e6
	fields["operation"] = operation

	entry.WithFields(fields).WithComponent(component).Info("performance metric")
}

// LogMetric logs and publishes a metric from the root logger.
func (l *Log) LogMetric(component string, metric string, value interface{}, metricType string, fields Fields) {
	l.WithComponent(component).LogMetric(component, metric, value, metricType, fields)
}
