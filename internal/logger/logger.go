package logger

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu  sync.Mutex
	app = logrus.New()
)

// Init configures the application logger. An empty file logs to stdout only;
// otherwise output is also written to a rotating file.
func Init(level, file string) error {
	mu.Lock()
	defer mu.Unlock()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	app.SetLevel(lvl)
	app.SetFormatter(&logrus.JSONFormatter{})

	var out io.Writer = os.Stdout
	if file != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		})
	}
	app.SetOutput(out)
	return nil
}

// L returns the application logger.
func L() *logrus.Logger {
	return app
}

// For returns an entry tagged with the component name.
func For(component string) *logrus.Entry {
	return app.WithField("component", component)
}

// Discard returns an entry that drops everything; used by tests.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}
