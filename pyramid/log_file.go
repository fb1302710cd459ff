package pyramid

import (
	"fmt"
	"log"

	"github.com/natefinch/lumberjack"
)

// LogConfig specifies an optional rotating log file.
type LogConfig struct {
	Logfile string
	MaxSize int `toml:"max_log_size"`
	MaxAge  int `toml:"max_log_age"`
}

type fileLogger struct {
	*lumberjack.Logger
}

// SetLogger creates a logger that saves to a rotating log file.  If no log file is
// specified, messages continue to go to the standard log output.
func (c *LogConfig) SetLogger() {
	if c == nil || c.Logfile == "" {
		Infof("Sending log messages to stdout since no log file specified.\n")
		return
	}
	fmt.Printf("Sending log messages to: %s\n", c.Logfile)
	l := &lumberjack.Logger{
		Filename: c.Logfile,
		MaxSize:  c.MaxSize, // megabytes
		MaxAge:   c.MaxAge,  // days
	}
	log.SetOutput(l)
	logger = fileLogger{l}
}

func (flog fileLogger) Debugf(format string, args ...interface{}) {
	log.Printf(" DEBUG "+format, args...)
}

func (flog fileLogger) Infof(format string, args ...interface{}) {
	log.Printf(" INFO "+format, args...)
}

func (flog fileLogger) Warningf(format string, args ...interface{}) {
	log.Printf(" WARNING "+format, args...)
}

func (flog fileLogger) Errorf(format string, args ...interface{}) {
	log.Printf(" ERROR "+format, args...)
}

func (flog fileLogger) Criticalf(format string, args ...interface{}) {
	log.Printf(" CRITICAL "+format, args...)
}

func (flog fileLogger) Shutdown() {
	log.Printf("Closing log file...\n")
	if flog.Logger != nil {
		flog.Close()
	}
}
