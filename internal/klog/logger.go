// Package klog is the kernel's internal logging facility. Before a real
// console driver is attached (out of scope, see spec.md section 1), boot
// messages accumulate in a Ring so they are not lost.
package klog

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

type logger interface {
	Println(...interface{})
}

type klogger struct {
	logger

	mu    sync.Mutex
	level Level
}

func (l *klogger) prologue(level Level) (msg string) {
	msg = level.String() + " "

	_, file, line, ok := runtime.Caller(3)
	if ok {
		short := file
		for i := len(file) - 1; i > 0; i-- {
			if file[i] == '/' {
				short = file[i+1:]
				break
			}
		}
		msg += short + ":" + strconv.Itoa(line) + ": "
	}

	return
}

func (l *klogger) log(level Level, format string, arg ...interface{}) {
	l.mu.Lock()
	skip := level < l.level
	l.mu.Unlock()
	if skip {
		return
	}

	msg := l.prologue(level) + fmt.Sprintf(format, arg...)
	l.Println(msg)

	if level == FATAL {
		os.Exit(1)
	}
}

func (l *klogger) logln(level Level, arg ...interface{}) {
	l.mu.Lock()
	skip := level < l.level
	l.mu.Unlock()
	if skip {
		return
	}

	msg := l.prologue(level) + strings.TrimSuffix(fmt.Sprintln(arg...), "\n")
	l.Println(msg)

	if level == FATAL {
		os.Exit(1)
	}
}

func (l *klogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

var std = &klogger{logger: NewRing(4096), level: INFO}

// SetOutput replaces the package-level logger's sink, swapping out the
// boot-time Ring. Once the sink is not a *Ring, Dump returns nil.
func SetOutput(l logger) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.logger = l
}

// SetLevel sets the minimum severity the package-level logger emits.
func SetLevel(level Level) { std.SetLevel(level) }

func Debug(format string, arg ...interface{}) { std.log(DEBUG, format, arg...) }
func Info(format string, arg ...interface{})  { std.log(INFO, format, arg...) }
func Warn(format string, arg ...interface{})  { std.log(WARN, format, arg...) }
func Error(format string, arg ...interface{}) { std.log(ERROR, format, arg...) }
func Fatal(format string, arg ...interface{}) { std.log(FATAL, format, arg...) }

func Debugln(arg ...interface{}) { std.logln(DEBUG, arg...) }
func Infoln(arg ...interface{})  { std.logln(INFO, arg...) }
func Warnln(arg ...interface{})  { std.logln(WARN, arg...) }
func Errorln(arg ...interface{}) { std.logln(ERROR, arg...) }

// Dump returns the boot ring's buffered messages, oldest first. Backs the
// native ABI's klog_dump debug syscall.
func Dump() []string {
	if r, ok := std.logger.(*Ring); ok {
		return r.Dump()
	}
	return nil
}
