package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// LogLevel orders log output by severity. Lower is more severe.
type LogLevel uint8

const (
	LevelError LogLevel = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

func (l LogLevel) letter() string {
	switch l {
	case LevelError:
		return "E"
	case LevelWarn:
		return "W"
	case LevelInfo:
		return "I"
	default:
		return "D"
	}
}

var (
	// debugPrintln is the global output function (set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// logLevel is the most verbose level that is emitted
	logLevel = LevelInfo

	// Async output channel, nil until InitAsyncDebug
	debugChan chan string
)

// SetDebugWriter sets the platform-specific output function
// This allows platforms to redirect log output to UART, USB, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetLogLevel sets the most verbose level that is emitted.
func SetLogLevel(level LogLevel) {
	logLevel = level
}

// InitAsyncDebug starts the async output goroutine
// Call this from main() after SetDebugWriter
func InitAsyncDebug() {
	debugChan = make(chan string, 16) // Buffer 16 messages
	go debugOutputWorker()
}

// debugOutputWorker runs in background, drains debug channel
func debugOutputWorker() {
	for msg := range debugChan {
		if debugPrintln != nil {
			debugPrintln(msg)
		}
	}
}

// emit writes through the async queue when it is running and falls back to
// a direct write otherwise. A full queue drops the message.
func emit(msg string) {
	if debugChan != nil {
		select {
		case debugChan <- msg:
		default:
		}
		return
	}
	if debugPrintln != nil {
		debugPrintln(msg)
	}
}

// Logger writes tagged, leveled lines: "W (adc) message".
type Logger struct {
	tag string
}

// NewLogger returns a logger that prefixes lines with tag.
func NewLogger(tag string) *Logger {
	return &Logger{tag: tag}
}

func (l *Logger) log(level LogLevel, msg string) {
	if l == nil || level > logLevel {
		return
	}
	emit(level.letter() + " (" + l.tag + ") " + msg)
}

func (l *Logger) Error(msg string) { l.log(LevelError, msg) }
func (l *Logger) Warn(msg string)  { l.log(LevelWarn, msg) }
func (l *Logger) Info(msg string)  { l.log(LevelInfo, msg) }
func (l *Logger) Debug(msg string) { l.log(LevelDebug, msg) }
