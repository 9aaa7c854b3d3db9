package log

import (
	"os"

	"github.com/hatlonely/dbkit/log/logger"
)

var defaultLogger logger.Logger

func init() {
	// 默认向 stderr 输出 text 格式日志，stdout 留给命令输出
	slog, err := logger.NewSLogWithWriter(&logger.SLogOptions{
		Level:  "info",
		Format: "text",
	}, os.Stderr)
	if err != nil {
		panic("failed to initialize default logger: " + err.Error())
	}
	defaultLogger = slog
}

func Default() logger.Logger {
	return defaultLogger
}

// NewLoggerWithOptions options 为 nil 时返回默认日志器
func NewLoggerWithOptions(options *logger.SLogOptions) (logger.Logger, error) {
	if options == nil {
		return defaultLogger, nil
	}
	return logger.NewSLogWithOptions(options)
}
