// Package glog is a small leveled logger in the style of the teacher
// repository's weed/glog package (itself a local fork of golang/glog):
// verbosity-gated Info, unconditional Warning/Error, and a fatal level
// that exits the process. Output goes to stderr with a glog-style
// severity/time prefix.
package glog

import (
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"
)

type severity int32

const (
	infoLog severity = iota
	warningLog
	errorLog
	fatalLog
)

var severityName = [...]string{
	infoLog:    "I",
	warningLog: "W",
	errorLog:   "E",
	fatalLog:   "F",
}

// Level is the verbosity level threshold, controlled by the -v flag.
type Level int32

var verbosity Level

func init() {
	flag.Var(&verbosityValue{}, "v", "log level for V logs")
}

type verbosityValue struct{}

func (verbosityValue) String() string { return strconv.Itoa(int(verbosity)) }
func (verbosityValue) Set(s string) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	verbosity = Level(v)
	return nil
}

// Verbose is returned by V and acts as a boolean gate for the Info family.
type Verbose bool

// V reports whether verbosity at the call site is enabled at level.
func V(level Level) Verbose {
	return Verbose(level <= verbosity)
}

type loggingT struct {
	mu  sync.Mutex
	out io.Writer
}

var logging = loggingT{out: os.Stderr}

// SetOutput redirects log output, primarily for tests.
func SetOutput(w io.Writer) {
	logging.mu.Lock()
	defer logging.mu.Unlock()
	logging.out = w
}

func (l *loggingT) header(s severity) string {
	_, file, line, ok := runtime.Caller(3)
	if !ok {
		file = "???"
		line = 0
	} else {
		for i := len(file) - 1; i >= 0; i-- {
			if file[i] == '/' {
				file = file[i+1:]
				break
			}
		}
	}
	now := time.Now()
	return fmt.Sprintf("%s%02d%02d %02d:%02d:%02d.%06d %s:%d] ",
		severityName[s], now.Month(), now.Day(), now.Hour(), now.Minute(), now.Second(), now.Nanosecond()/1000,
		file, line)
}

func (l *loggingT) print(s severity, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.out, l.header(s), fmt.Sprint(args...), "\n")
	if s == fatalLog {
		os.Exit(1)
	}
}

func (l *loggingT) println(s severity, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.out, l.header(s), fmt.Sprintln(args...))
	if s == fatalLog {
		os.Exit(1)
	}
}

func (l *loggingT) printf(s severity, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	fmt.Fprint(l.out, l.header(s), msg, "\n")
	if s == fatalLog {
		os.Exit(1)
	}
}

// Info-level, gated by V.

func (v Verbose) Info(args ...interface{}) {
	if v {
		logging.print(infoLog, args...)
	}
}

func (v Verbose) Infoln(args ...interface{}) {
	if v {
		logging.println(infoLog, args...)
	}
}

func (v Verbose) Infof(format string, args ...interface{}) {
	if v {
		logging.printf(infoLog, format, args...)
	}
}

// Unconditional entry points.

func Infof(format string, args ...interface{})    { logging.printf(infoLog, format, args...) }
func Infoln(args ...interface{})                  { logging.println(infoLog, args...) }
func Warningf(format string, args ...interface{}) { logging.printf(warningLog, format, args...) }
func Warningln(args ...interface{})               { logging.println(warningLog, args...) }
func Errorf(format string, args ...interface{})   { logging.printf(errorLog, format, args...) }
func Errorln(args ...interface{})                 { logging.println(errorLog, args...) }
func Fatalf(format string, args ...interface{})   { logging.printf(fatalLog, format, args...) }
func Fatalln(args ...interface{})                 { logging.println(fatalLog, args...) }
