package resources

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/rs/zerolog"
	otelog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
)

var severities = map[zerolog.Level]struct {
	severity otelog.Severity
	text     string
}{
	zerolog.TraceLevel: {otelog.SeverityTrace, "TRACE"},
	zerolog.DebugLevel: {otelog.SeverityDebug, "DEBUG"},
	zerolog.InfoLevel:  {otelog.SeverityInfo, "INFO"},
	zerolog.WarnLevel:  {otelog.SeverityWarn, "WARN"},
	zerolog.ErrorLevel: {otelog.SeverityError, "ERROR"},
	zerolog.FatalLevel: {otelog.SeverityFatal, "FATAL"},
	zerolog.PanicLevel: {otelog.SeverityFatal4, "FATAL"},
}

// ZerologHook re-emits every zerolog event as an OpenTelemetry log record.
// Stdout output is untouched.
type ZerologHook struct {
	logger otelog.Logger
	base   []otelog.KeyValue
}

func NewZerologHook(name string, version string, env string) *ZerologHook {
	return &ZerologHook{
		logger: global.GetLoggerProvider().Logger(name, otelog.WithInstrumentationVersion(version)),
		base: []otelog.KeyValue{
			otelog.String("service.name", name),
			otelog.String("service.version", version),
			otelog.String("deployment.environment", env),
		},
	}
}

func (h *ZerologHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	fields, ok := eventFields(e)
	if !ok {
		return
	}

	sev, ok := severities[level]
	if !ok {
		sev = severities[zerolog.InfoLevel]
	}

	var rec otelog.Record

	rec.SetTimestamp(eventTime(fields))
	rec.SetObservedTimestamp(time.Now())
	rec.SetSeverity(sev.severity)
	rec.SetSeverityText(sev.text)
	rec.SetBody(otelog.StringValue(msg))
	rec.AddAttributes(h.base...)
	rec.AddAttributes(toAttributes(fields)...)

	h.logger.Emit(e.GetCtx(), rec)
}

// eventFields decodes what has been written to the event so far. zerolog keeps
// it in an unexported buffer that is not closed until the event is sent.
func eventFields(e *zerolog.Event) (map[string]any, bool) {
	if e == nil {
		return nil, false
	}

	v := reflect.ValueOf(e).Elem().FieldByName("buf")
	if !v.IsValid() || v.Kind() != reflect.Slice || v.Type().Elem().Kind() != reflect.Uint8 {
		return nil, false
	}

	b := append([]byte(nil), v.Bytes()...)
	if len(b) == 0 {
		return nil, false
	}

	if b[len(b)-1] != '}' {
		b = append(b, '}')
	}

	var fields map[string]any
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, false
	}

	return fields, true
}

func eventTime(fields map[string]any) time.Time {
	s, ok := fields[zerolog.TimestampFieldName].(string)
	if !ok {
		return time.Now()
	}

	for _, layout := range []string{zerolog.TimeFieldFormat, time.RFC3339Nano, time.RFC3339} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}

	return time.Now()
}

func toAttributes(fields map[string]any) []otelog.KeyValue {
	kvs := make([]otelog.KeyValue, 0, len(fields))

	for k, v := range fields {
		if k == zerolog.TimestampFieldName || k == zerolog.LevelFieldName || k == zerolog.MessageFieldName {
			continue
		}

		switch x := v.(type) {
		case string:
			kvs = append(kvs, otelog.String(k, x))
		case bool:
			kvs = append(kvs, otelog.Bool(k, x))
		case float64:
			if x == float64(int64(x)) {
				kvs = append(kvs, otelog.Int64(k, int64(x)))
			} else {
				kvs = append(kvs, otelog.Float64(k, x))
			}
		case map[string]any, []any:
			raw, _ := json.Marshal(x)
			kvs = append(kvs, otelog.String(k, string(raw)))
		default:
			kvs = append(kvs, otelog.String(k, fmt.Sprintf("%v", x)))
		}
	}

	return kvs
}
