package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalSugaredLogger  atomic.Pointer[zap.SugaredLogger]
	globalRotatingSink   *rotatingFileSink
	minimumSeverityLevel atomic.Int32
	loggerMutex          sync.Mutex
)

const (
	SeverityDebug             = 0
	SeverityInfo              = 1
	SeverityError             = 2
	MaximumLogFileSizeInBytes = 10 * 1024 * 1024 // 10 Megabytes
	logFileName               = "system.log"
	rotationCheckEveryBytes   = 10 * 1024
)

// InitializeLogger routes log events to <directoryPath>/system.log as JSON and
// to stdout in console format. Calling it again replaces the previous logger.
func InitializeLogger(directoryPath string, levelString string) error {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	closeAndFlushLoggerInternal()

	if err := os.MkdirAll(directoryPath, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	sink, err := openRotatingFileSink(directoryPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	switch strings.ToUpper(levelString) {
	case "DEBUG":
		minimumSeverityLevel.Store(SeverityDebug)
	case "ERROR":
		minimumSeverityLevel.Store(SeverityError)
	default:
		minimumSeverityLevel.Store(SeverityInfo)
	}

	fileEncoderConfig := zap.NewProductionEncoderConfig()
	fileEncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleEncoderConfig := zap.NewDevelopmentEncoderConfig()
	consoleEncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoderConfig), sink, zapcore.DebugLevel),
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoderConfig), zapcore.Lock(os.Stdout), zapcore.DebugLevel),
	)

	globalRotatingSink = sink
	globalSugaredLogger.Store(zap.New(core).Sugar())
	return nil
}

func ShutdownLogger() {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	closeAndFlushLoggerInternal()
}

func closeAndFlushLoggerInternal() {
	sugared := globalSugaredLogger.Swap(nil)
	if sugared != nil {
		_ = sugared.Sync()
	}
	if globalRotatingSink != nil {
		globalRotatingSink.close()
		globalRotatingSink = nil
	}
}

func IsLoggerInitialized() bool {
	return globalSugaredLogger.Load() != nil
}

// CheckAndRotateLogFile renames system.log aside once it grows past
// MaximumLogFileSizeInBytes and starts a fresh file.
func CheckAndRotateLogFile() {
	loggerMutex.Lock()
	sink := globalRotatingSink
	loggerMutex.Unlock()

	if sink != nil {
		sink.rotateIfOversized()
	}
}

type rotatingFileSink struct {
	mutex                      sync.Mutex
	directoryPath              string
	fileHandle                 *os.File
	bytesWrittenSinceLastCheck int
}

func openRotatingFileSink(directoryPath string) (*rotatingFileSink, error) {
	sink := &rotatingFileSink{directoryPath: directoryPath}
	if err := sink.openLocked(); err != nil {
		return nil, err
	}
	return sink, nil
}

func (s *rotatingFileSink) openLocked() error {
	file, err := os.OpenFile(filepath.Join(s.directoryPath, logFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	s.fileHandle = file
	return nil
}

func (s *rotatingFileSink) Write(p []byte) (int, error) {
	s.mutex.Lock()
	if s.fileHandle == nil {
		s.mutex.Unlock()
		return len(p), nil
	}
	n, err := s.fileHandle.Write(p)
	s.bytesWrittenSinceLastCheck += n
	shouldCheck := s.bytesWrittenSinceLastCheck > rotationCheckEveryBytes
	if shouldCheck {
		s.bytesWrittenSinceLastCheck = 0
	}
	s.mutex.Unlock()

	if shouldCheck {
		s.rotateIfOversized()
	}
	return n, err
}

func (s *rotatingFileSink) Sync() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.fileHandle == nil {
		return nil
	}
	return s.fileHandle.Sync()
}

func (s *rotatingFileSink) rotateIfOversized() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.fileHandle == nil {
		return
	}

	fileInfo, err := s.fileHandle.Stat()
	if err != nil || fileInfo.Size() <= MaximumLogFileSizeInBytes {
		return
	}

	s.fileHandle.Close()
	s.fileHandle = nil

	oldFilePath := filepath.Join(s.directoryPath, logFileName)
	newFilePath := oldFilePath + "." + fmt.Sprint(time.Now().UnixNano())
	os.Rename(oldFilePath, newFilePath)

	s.openLocked()
}

func (s *rotatingFileSink) close() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.fileHandle != nil {
		s.fileHandle.Close()
		s.fileHandle = nil
	}
}

func logAt(severity int32, emit func(*zap.SugaredLogger)) {
	if minimumSeverityLevel.Load() > severity {
		return
	}
	if sugared := globalSugaredLogger.Load(); sugared != nil {
		emit(sugared)
	}
}

func LogAccessEvent(format string, args ...interface{}) {
	if sugared := globalSugaredLogger.Load(); sugared != nil {
		sugared.With("channel", "access").Infof(format, args...)
	}
}

func LogInfoEvent(format string, args ...interface{}) {
	logAt(SeverityInfo, func(s *zap.SugaredLogger) { s.Infof(format, args...) })
}

func LogErrorEvent(format string, args ...interface{}) {
	logAt(SeverityError, func(s *zap.SugaredLogger) { s.Errorf(format, args...) })
}

func LogDebugEvent(format string, args ...interface{}) {
	logAt(SeverityDebug, func(s *zap.SugaredLogger) { s.Debugf(format, args...) })
}
