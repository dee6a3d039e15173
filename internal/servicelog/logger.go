// Package servicelog adapts the teacher's structured-logging wrapper
// (a service-aware Logger alongside a go.uber.org/zap configuration
// with a lumberjack sink) to ustreamerd.
package servicelog

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/kardianos/service"
	"go.uber.org/zap"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

type lumberjackSink struct {
	*lumberjack.Logger
}

func (lumberjackSink) Sync() error {
	return nil
}

// Attrib is a deferred key=value pair appended to a log line.
type Attrib func(sb *strings.Builder)

func printer(name string, val interface{}) Attrib {
	return func(sb *strings.Builder) {
		sb.WriteString(", ")
		sb.WriteString(name)
		sb.WriteString("=")
		fmt.Fprintf(sb, "%v", val)
	}
}

func String(name, value string) Attrib        { return printer(name, value) }
func Error(err error) Attrib                   { return printer("error", err) }
func Bool(name string, value bool) Attrib      { return printer(name, value) }
func Any(name string, value interface{}) Attrib { return printer(name, value) }
func Int(name string, value int) Attrib        { return printer(name, value) }
func Uint64(name string, value uint64) Attrib  { return printer(name, value) }
func Float64(name string, value float64) Attrib { return printer(name, value) }
func Time(name string, value time.Time) Attrib { return printer(name, value) }
func Duration(name string, value time.Duration) Attrib { return printer(name, value) }

// Logger is the structured logging surface every component takes.
type Logger interface {
	With(attrs ...Attrib) Logger
	Info(msg string, attrs ...Attrib)
	Error(msg string, attrs ...Attrib)
	Warn(msg string, attrs ...Attrib)
	Debug(msg string, attrs ...Attrib)
	Fatal(msg string, attrs ...Attrib)
}

type logger struct {
	svc   service.Logger
	debug bool
	attrs []Attrib
}

// New registers a lumberjack zap sink for logFile and builds a zap
// config on it, panicking if that build fails. Log lines are not
// written through zap: they go to svc (the OS service logger) when it
// is non-nil and to the standard log package otherwise.
func New(svc service.Logger, logFile string, debug bool) Logger {
	zap.RegisterSink("lumberjack", func(u *url.URL) (zap.Sink, error) {
		return lumberjackSink{
			Logger: &lumberjack.Logger{
				Filename:   u.Path,
				MaxSize:    100, // MB
				MaxBackups: 5,
				MaxAge:     28, // days
			},
		}, nil
	})

	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}
	config.OutputPaths = []string{"lumberjack://" + logFile}
	if _, err := config.Build(); err != nil {
		panic(err)
	}
	return &logger{svc: svc, debug: debug}
}

func (l *logger) render(msg string, attrs ...Attrib) string {
	var sb strings.Builder
	sb.WriteString(msg)
	for _, a := range l.attrs {
		a(&sb)
	}
	for _, a := range attrs {
		a(&sb)
	}
	return sb.String()
}

func (l *logger) Info(msg string, attrs ...Attrib) {
	message := l.render(msg, attrs...)
	if l.svc != nil {
		l.svc.Info(message)
	} else {
		log.Println(message)
	}
}

func (l *logger) Error(msg string, attrs ...Attrib) {
	message := l.render(msg, attrs...)
	if l.svc != nil {
		l.svc.Error(message)
	} else {
		log.Println(message)
	}
}

func (l *logger) Fatal(msg string, attrs ...Attrib) {
	message := l.render(msg, attrs...)
	if l.svc != nil {
		l.svc.Error(message)
		panic(msg)
	}
	log.Fatal(message)
}

func (l *logger) Warn(msg string, attrs ...Attrib) {
	message := l.render(msg, attrs...)
	if l.svc != nil {
		l.svc.Warning(message)
	} else {
		log.Println(message)
	}
}

func (l *logger) Debug(msg string, attrs ...Attrib) {
	if !l.debug {
		return
	}
	message := l.render(msg, attrs...)
	if l.svc != nil {
		l.svc.Info(message)
	} else {
		log.Println(message)
	}
}

func (l *logger) With(attrs ...Attrib) Logger {
	newLogger := &logger{svc: l.svc, debug: l.debug}
	if len(l.attrs) > 0 {
		newLogger.attrs = make([]Attrib, 0, len(l.attrs)+len(attrs))
		newLogger.attrs = append(newLogger.attrs, l.attrs...)
	}
	newLogger.attrs = append(newLogger.attrs, attrs...)
	return newLogger
}
