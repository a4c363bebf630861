package otel

import (
	"fmt"
	"time"

	"github.com/JailtonJunior94/actionflow/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
)

// attributeOf maps a field onto the closest attribute type. Durations become
// "<key>_ms" integers and anything unknown is formatted with fmt.
func attributeOf(field observability.Field) attribute.KeyValue {
	key := field.Key

	switch v := field.Value.(type) {
	case string:
		return attribute.String(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float32:
		return attribute.Float64(key, float64(v))
	case float64:
		return attribute.Float64(key, v)
	case time.Duration:
		return attribute.Int64(key+"_ms", v.Milliseconds())
	case time.Time:
		return attribute.String(key, v.UTC().Format(time.RFC3339Nano))
	case error:
		return attribute.String(key, v.Error())
	case fmt.Stringer:
		return attribute.String(key, v.String())
	}
	return attribute.String(key, fmt.Sprint(field.Value))
}

func attributesOf(fields []observability.Field) []attribute.KeyValue {
	if len(fields) == 0 {
		return nil
	}

	attrs := make([]attribute.KeyValue, 0, len(fields))
	for _, field := range fields {
		attrs = append(attrs, attributeOf(field))
	}
	return attrs
}
