package diag

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultLogDir: 默认日志目录（相对工作目录）。
const DefaultLogDir = "logs"

// Logger 为结构化事件日志器：zap JSON 编码，单行写入轮转文件。
// 事件字段：level ts corr_id comp stage code dur_ms count file_id artifact msg kv。
// 零值与 nil 接收者均为 no-op。
type Logger struct {
	z    *zap.Logger
	sink *RotatingFile
}

// NewLogger 写入默认目录 logs/，10 MiB 轮转。
func NewLogger(corrID, level string) *Logger {
	return NewLoggerIn(DefaultLogDir, corrID, level)
}

// NewLoggerIn 写入指定目录。
func NewLoggerIn(dir, corrID, level string) *Logger {
	sink := NewRotatingFile(dir, 10*1024*1024)
	l := NewLoggerTo(sink, corrID, level)
	l.sink = sink
	return l
}

// NewLoggerTo 写入任意 WriteSyncer（测试或 stderr）。
func NewLoggerTo(ws zapcore.WriteSyncer, corrID, level string) *Logger {
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), ws, ParseLevel(level))
	z := zap.New(core, zap.ErrorOutput(zapcore.Lock(os.Stderr)))
	if corrID != "" {
		z = z.With(zap.String("corr_id", corrID))
	}
	return &Logger{z: z}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		LevelKey:       "level",
		TimeKey:        "ts",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     utcRFC3339,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
}

func utcRFC3339(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format(time.RFC3339))
}

// ParseLevel 解析日志等级；未知值按 info。
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Event 为标准事件结构。
type Event struct {
	Comp     string
	Stage    string // start|finish|error|warn
	Code     string
	DurMS    int64
	Count    int64
	FileID   string
	Artifact string
	Msg      string
	KV       map[string]string
}

func (ev Event) fields() []zap.Field {
	fs := make([]zap.Field, 0, 8)
	fs = append(fs, zap.String("comp", ev.Comp), zap.String("stage", ev.Stage))
	if ev.Code != "" {
		fs = append(fs, zap.String("code", ev.Code))
	}
	if ev.DurMS != 0 {
		fs = append(fs, zap.Int64("dur_ms", ev.DurMS))
	}
	if ev.Count != 0 {
		fs = append(fs, zap.Int64("count", ev.Count))
	}
	if ev.FileID != "" {
		fs = append(fs, zap.String("file_id", ev.FileID))
	}
	if ev.Artifact != "" {
		fs = append(fs, zap.String("artifact", ev.Artifact))
	}
	if len(ev.KV) > 0 {
		fs = append(fs, zap.Any("kv", ev.KV))
	}
	return fs
}

func (l *Logger) log(lv zapcore.Level, ev Event) {
	if l == nil || l.z == nil {
		return
	}
	if ce := l.z.Check(lv, ev.Msg); ce != nil {
		ce.Write(ev.fields()...)
	}
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	l.log(zapcore.InfoLevel, Event{Comp: comp, Stage: "start", Msg: msg})
	return &Timer{l: l, comp: comp, t0: time.Now()}
}

// StartWith 记录带 file_id/artifact 的 start。
func (l *Logger) StartWith(comp, msg, fileID, artifact string) *Timer {
	l.log(zapcore.InfoLevel, Event{Comp: comp, Stage: "start", FileID: fileID, Artifact: artifact, Msg: msg})
	return &Timer{l: l, comp: comp, fileID: fileID, artifact: artifact, t0: time.Now()}
}

// StartWithKV 记录带 file_id/artifact 与键值的 start。
func (l *Logger) StartWithKV(comp, msg, fileID, artifact string, kv map[string]string) *Timer {
	l.log(zapcore.InfoLevel, Event{Comp: comp, Stage: "start", FileID: fileID, Artifact: artifact, Msg: msg, KV: kv})
	return &Timer{l: l, comp: comp, fileID: fileID, artifact: artifact, t0: time.Now()}
}

// Error 记录 error 事件。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.ErrorWithKV(comp, code, msg, durSince, "", "", nil)
}

// ErrorWith 支持 file_id/artifact。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, fileID, artifact string) {
	l.ErrorWithKV(comp, code, msg, durSince, fileID, artifact, nil)
}

// ErrorWithKV 支持附带键值对（例如偏移量、标签名）。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, fileID, artifact string, kv map[string]string) {
	var dur int64
	if durSince != nil {
		dur = time.Since(*durSince).Milliseconds()
	}
	l.log(zapcore.ErrorLevel, Event{Comp: comp, Stage: "error", Code: code, DurMS: dur, Msg: msg, FileID: fileID, Artifact: artifact, KV: kv})
}

// Warn 记录非致命提示（结构问题、引号奇偶等）。
func (l *Logger) Warn(comp, code, msg, fileID string, kv map[string]string) {
	l.log(zapcore.WarnLevel, Event{Comp: comp, Stage: "warn", Code: code, FileID: fileID, Msg: msg, KV: kv})
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64) {
	l.log(zapcore.InfoLevel, Event{Comp: comp, Stage: "finish", DurMS: time.Since(start).Milliseconds(), Count: count, Msg: msg})
}

// DebugStart 输出调试级别的"start"类事件（仅在 level=debug 时生效）。
func (l *Logger) DebugStart(comp, msg, fileID, artifact string, kv map[string]string) {
	l.log(zapcore.DebugLevel, Event{Comp: comp, Stage: "start", FileID: fileID, Artifact: artifact, Msg: msg, KV: kv})
}

// Sync 刷新缓冲并关闭文件句柄。
func (l *Logger) Sync() error {
	if l == nil || l.z == nil {
		return nil
	}
	err := l.z.Sync()
	if l.sink != nil {
		if cerr := l.sink.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l        *Logger
	comp     string
	fileID   string
	artifact string
	t0       time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	t.l.log(zapcore.InfoLevel, Event{Comp: t.comp, Stage: "finish", DurMS: time.Since(t.t0).Milliseconds(), Count: count, FileID: t.fileID, Artifact: t.artifact, Msg: msg})
}
