package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset   = "\x1b[0m"
	ansiBright  = "\x1b[1m"
	ansiDim     = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

// slowRequestMS marks a request duration as slow in pretty output.
const slowRequestMS = 500

var prettyBufPool = sync.Pool{New: func() any { return new(bytes.Buffer) }}

// prettyHandler writes one logfmt-like line per record for local development:
//
//	ts=12:00:01.234 lvl=[INFO] msg=http.request src=middleware.go:61 method=POST status=200
type prettyHandler struct {
	w     io.Writer
	level slog.Leveler
	src   bool
	color bool

	// prefix holds attrs already rendered by WithAttrs; group is the
	// dotted key prefix opened by WithGroup.
	prefix string
	group  string

	mu *sync.Mutex
}

func newPrettyHandler(w io.Writer, opts *slog.HandlerOptions, color bool) slog.Handler {
	h := &prettyHandler{
		w:     w,
		level: slog.LevelInfo,
		color: color,
		mu:    &sync.Mutex{},
	}
	if opts != nil {
		if opts.Level != nil {
			h.level = opts.Level
		}
		h.src = opts.AddSource
	}
	return h
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	buf := prettyBufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer prettyBufPool.Put(buf)

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	buf.WriteString("ts=")
	buf.WriteString(h.paint(ts.Format("15:04:05.000"), ansiDim))
	buf.WriteString(" lvl=")
	buf.WriteString(levelTag(r.Level, h.color))
	buf.WriteString(" msg=")
	buf.WriteString(h.paint(r.Message, ansiBright))

	if h.src && r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		if frame.File != "" {
			buf.WriteString(" src=")
			buf.WriteString(h.paint(filepath.Base(frame.File)+":"+strconv.Itoa(frame.Line), ansiDim))
		}
	}

	buf.WriteString(h.prefix)
	r.Attrs(func(a slog.Attr) bool {
		h.writeAttr(buf, h.group, a)
		return true
	})
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	var buf bytes.Buffer
	for _, a := range attrs {
		h.writeAttr(&buf, h.group, a)
	}
	cp := *h
	cp.prefix = h.prefix + buf.String()
	return &cp
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	name = strings.TrimSpace(name)
	if name == "" {
		return h
	}
	cp := *h
	cp.group = joinKey(h.group, name)
	return &cp
}

func (h *prettyHandler) writeAttr(buf *bytes.Buffer, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	key := strings.TrimSpace(a.Key)

	if a.Value.Kind() == slog.KindGroup {
		// Inline groups (empty key) splice their attrs into the parent.
		for _, ga := range a.Value.Group() {
			h.writeAttr(buf, joinKey(group, key), ga)
		}
		return
	}
	if key == "" || a.Equal(slog.Attr{}) {
		return
	}

	full := joinKey(group, key)
	buf.WriteByte(' ')
	buf.WriteString(remapPrettyKey(full))
	buf.WriteByte('=')
	buf.WriteString(h.prettyValue(key, a.Value))
}

func joinKey(parent, key string) string {
	switch {
	case parent == "":
		return key
	case key == "":
		return parent
	default:
		return parent + "." + key
	}
}

// prettyValue highlights the request-log and register fields by their leaf key.
func (h *prettyHandler) prettyValue(key string, v slog.Value) string {
	switch key {
	case "method":
		return colorizeHTTPMethod(strings.ToUpper(strings.TrimSpace(v.String())), h.color)
	case "path":
		return h.paint(strings.TrimSpace(v.String()), ansiCyan)
	case "status":
		if n, ok := valueToInt64(v); ok {
			return colorizeStatusCode(int(n), h.color)
		}
	case "status_class":
		return colorizeStatusClass(strings.TrimSpace(v.String()), h.color)
	case "duration_ms":
		if n, ok := valueToInt64(v); ok {
			return colorizeDurationMS(n, h.color)
		}
	case "result":
		return colorizeResult(strings.ToLower(strings.TrimSpace(v.String())), h.color)
	case "request_id", "record_id":
		return h.paint(valueToString(v), ansiDim)
	case "err":
		return h.paint(quoteIfNeeded(valueToString(v)), ansiRed)
	}
	return quoteIfNeeded(valueToString(v))
}

func remapPrettyKey(k string) string {
	switch k {
	case "status_class":
		return "class"
	case "duration_ms":
		return "duration"
	default:
		return k
	}
}

func valueToString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}
	// String() formats the remaining kinds the way the text handler does.
	return v.String()
}

func quoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

func levelTag(level slog.Level, color bool) string {
	var tag, code string
	switch {
	case level >= slog.LevelError:
		tag, code = "[ERROR]", ansiRed
	case level >= slog.LevelWarn:
		tag, code = "[WARN]", ansiYellow
	case level < slog.LevelInfo:
		tag, code = "[DEBUG]", ansiMagenta
	default:
		tag, code = "[INFO]", ansiBlue
	}
	return wrap(tag, code, color)
}

func (h *prettyHandler) paint(s, code string) string { return wrap(s, code, h.color) }

func wrap(s, code string, color bool) string {
	if !color {
		return s
	}
	return code + s + ansiReset
}

func colorizeHTTPMethod(method string, color bool) string {
	switch method {
	case "GET", "HEAD":
		return wrap(method, ansiBlue, color)
	case "POST":
		return wrap(method, ansiGreen, color)
	case "PUT", "PATCH":
		return wrap(method, ansiYellow, color)
	case "DELETE":
		return wrap(method, ansiRed, color)
	default:
		return wrap(method, ansiMagenta, color)
	}
}

func statusColor(code int) string {
	switch {
	case code >= 500:
		return ansiRed
	case code >= 400:
		return ansiYellow
	case code >= 300:
		return ansiCyan
	default:
		return ansiGreen
	}
}

func colorizeStatusCode(code int, color bool) string {
	return wrap(strconv.Itoa(code), statusColor(code), color)
}

func colorizeStatusClass(class string, color bool) string {
	if len(class) != 3 || class[1:] != "xx" || class[0] < '1' || class[0] > '5' {
		return quoteIfNeeded(class)
	}
	return wrap(class, statusColor(int(class[0]-'0')*100), color)
}

func colorizeDurationMS(ms int64, color bool) string {
	s := strconv.FormatInt(ms, 10) + "ms"
	if ms >= slowRequestMS {
		return wrap(s, ansiYellow, color)
	}
	return wrap(s, ansiDim, color)
}

func colorizeResult(result string, color bool) string {
	switch result {
	case "success":
		return wrap(result, ansiGreen, color)
	case "redirect":
		return wrap(result, ansiCyan, color)
	case "client_error":
		return wrap(result, ansiYellow, color)
	case "server_error":
		return wrap(result, ansiRed, color)
	default:
		return quoteIfNeeded(result)
	}
}

func valueToInt64(v slog.Value) (int64, bool) {
	switch v.Kind() {
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		u := v.Uint64()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	case slog.KindFloat64:
		return int64(v.Float64()), true
	case slog.KindDuration:
		return v.Duration().Milliseconds(), true
	case slog.KindString:
		n, err := strconv.ParseInt(strings.TrimSpace(v.String()), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
