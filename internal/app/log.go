package app

import (
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

var Logger zerolog.Logger

// MemoryLog keeps a tail of the log for the HTTP API.
var MemoryLog = newMemLog(1 << 16)

func GetLogger(module string) zerolog.Logger {
	if s, ok := modules[module]; ok {
		lvl, err := zerolog.ParseLevel(s)
		if err == nil {
			return Logger.Level(lvl)
		}
		Logger.Warn().Err(err).Caller().Send()
	}

	return Logger
}

// initLogger support:
// - output: empty (only to memory), stderr, stdout
// - format: empty (autodetect color support), color, json, text
// - time:   empty (disable timestamp), UNIXMS, UNIXMICRO, UNIXNANO
// - level:  disabled, trace, debug, info, warn, error...
func initLogger() {
	var cfg struct {
		Mod map[string]string `yaml:"log"`
	}

	cfg.Mod = modules // defaults

	LoadConfig(&cfg)

	var writer io.Writer

	switch modules["output"] {
	case "stderr":
		writer = os.Stderr
	case "stdout":
		writer = os.Stdout
	}

	timeFormat := modules["time"]

	if writer != nil {
		if format := modules["format"]; format != "json" {
			console := &zerolog.ConsoleWriter{Out: writer}

			switch format {
			case "text":
				console.NoColor = true
			case "color":
				console.NoColor = false
			default:
				// autodetection if output support color
				console.NoColor = !isatty.IsTerminal(writer.(*os.File).Fd())
			}

			if timeFormat != "" {
				console.TimeFormat = "15:04:05.000"
			} else {
				console.PartsOrder = []string{
					zerolog.LevelFieldName,
					zerolog.CallerFieldName,
					zerolog.MessageFieldName,
				}
			}

			writer = console
		}

		writer = zerolog.MultiLevelWriter(writer, MemoryLog)
	} else {
		writer = MemoryLog
	}

	lvl, _ := zerolog.ParseLevel(modules["level"])
	Logger = zerolog.New(writer).Level(lvl)

	if timeFormat != "" {
		zerolog.TimeFieldFormat = timeFormat
		Logger = Logger.With().Timestamp().Logger()
	}
}

// modules log levels
var modules = map[string]string{
	"format": "",
	"level":  "info",
	"output": "stdout",
	"time":   zerolog.TimeFormatUnixMs,
}

// memLog keeps the last size bytes of everything written to it.
type memLog struct {
	mu   sync.Mutex
	buf  []byte
	size int
}

func newMemLog(size int) *memLog {
	return &memLog{size: size}
}

func (m *memLog) Write(p []byte) (n int, err error) {
	m.mu.Lock()
	m.buf = append(m.buf, p...)
	if overflow := len(m.buf) - m.size; overflow > 0 {
		// drop whole lines from the head
		for overflow < len(m.buf) && m.buf[overflow-1] != '\n' {
			overflow++
		}
		m.buf = append(m.buf[:0], m.buf[overflow:]...)
	}
	m.mu.Unlock()
	return len(p), nil
}

func (m *memLog) WriteTo(w io.Writer) (int64, error) {
	m.mu.Lock()
	b := make([]byte, len(m.buf))
	copy(b, m.buf)
	m.mu.Unlock()

	n, err := w.Write(b)
	return int64(n), err
}

func (m *memLog) Bytes() []byte {
	m.mu.Lock()
	b := make([]byte, len(m.buf))
	copy(b, m.buf)
	m.mu.Unlock()
	return b
}

func (m *memLog) Reset() {
	m.mu.Lock()
	m.buf = m.buf[:0]
	m.mu.Unlock()
}
