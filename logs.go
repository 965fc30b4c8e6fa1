package hauler_scheduler

import (
	"go.uber.org/zap"
)

type Logger interface {
	Debug(msg string, args ...Field)
	Info(msg string, args ...Field)
	Warn(msg string, args ...Field)
	Error(msg string, args ...Field)
	// With 返回携带固定字段的子 Logger
	With(args ...Field) Logger
}

type Field struct {
	Key string
	Val any
}

// 常用字段
func TaskField(task string) Field { return Field{Key: "task", Val: task} }
func JobField(id int64) Field { return Field{Key: "job_id", Val: id} }
func ErrField(err error) Field { return Field{Key: "err", Val: err} }
func TenantField(id *int64) Field {
	if id == nil {
		return Field{Key: "tenant_id", Val: "global"}
	}
	return Field{Key: "tenant_id", Val: *id}
}

type ZapLogger struct {
	zap *zap.Logger
}

func NewZapLogger(zap *zap.Logger) Logger {
	return &ZapLogger{zap: zap}
}

func (z *ZapLogger) Debug(msg string, args ...Field) {
	z.zap.Debug(msg, z.toZapFields(args)...)
}

func (z *ZapLogger) Info(msg string, args ...Field) {
	z.zap.Info(msg, z.toZapFields(args)...)
}

func (z *ZapLogger) Warn(msg string, args ...Field) {
	z.zap.Warn(msg, z.toZapFields(args)...)
}

func (z *ZapLogger) Error(msg string, args ...Field) {
	z.zap.Error(msg, z.toZapFields(args)...)
}

func (z *ZapLogger) With(args ...Field) Logger {
	return &ZapLogger{zap: z.zap.With(z.toZapFields(args)...)}
}

func (z *ZapLogger) toZapFields(args []Field) []zap.Field {
	res := make([]zap.Field, 0, len(args))
	for _, arg := range args {
		if err, ok := arg.Val.(error); ok {
			res = append(res, zap.NamedError(arg.Key, err))
			continue
		}
		res = append(res, zap.Any(arg.Key, arg.Val))
	}

	return res
}
