package logger

import (
	"log/slog"
	"strconv"
)

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Product records the product identifier under the key "product".
func Product(product string) slog.Attr {
	return slog.String("product", product)
}

// Path records the request path under the key "path".
func Path(path string) slog.Attr {
	return slog.String("path", path)
}

// Window records the rate-limit window name under the key "window".
func Window(window string) slog.Attr {
	return slog.String("window", window)
}

// Limit records a configured capacity under the key "limit".
func Limit(limit int64) slog.Attr {
	return slog.Int64("limit", limit)
}

// Count records an observed request count under the key "count".
func Count(count int64) slog.Attr {
	return slog.Int64("count", count)
}

// Component records the emitting subsystem under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}
