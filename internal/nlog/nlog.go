// Package nlog is the reader-group coordinator's logger: leveled,
// timestamped, safe for concurrent use, optionally written to per-role
// files in a log directory (appended to, never rotated). Adapted from the storage-node logger this project started
// from, trading its pooled-buffer fast path for a plain mutex-guarded
// writer -- logging is not a hot path for a coordinator that calls out
// to a synchronizer and an upstream controller on every mutation anyway.
package nlog

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

var sevTag = [...]string{"I", "W", "E"}

var (
	toStderr     bool
	alsoToStderr bool
	logDir       string
	title        = "rgcoord"

	mu  sync.Mutex
	out io.Writer = os.Stderr
	errOut io.Writer = os.Stderr
)

// InitFlags registers the logger's command-line flags on flset.
func InitFlags(flset *flag.FlagSet) {
	flset.BoolVar(&toStderr, "logtostderr", false, "log to standard error instead of files")
	flset.BoolVar(&alsoToStderr, "alsologtostderr", false, "log to standard error as well as files")
}

// SetLogDirRole opens INFO/ERROR log files under dir, named after role.
// Safe to call before any log write; a no-op once toStderr is set.
func SetLogDirRole(dir, role string) {
	mu.Lock()
	defer mu.Unlock()
	logDir = dir
	if toStderr || dir == "" {
		return
	}
	if f, err := os.OpenFile(filepath.Join(dir, title+"."+role+".INFO"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
		out = f
	}
	if f, err := os.OpenFile(filepath.Join(dir, title+"."+role+".ERROR"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
		errOut = f
	}
}

func SetTitle(s string) { title = s }

func Infof(format string, args ...any)    { write(sevInfo, format, args...) }
func Infoln(args ...any)                  { write(sevInfo, "", args...) }
func Warningf(format string, args ...any) { write(sevWarn, format, args...) }
func Warningln(args ...any)               { write(sevWarn, "", args...) }
func Errorf(format string, args ...any)   { write(sevErr, format, args...) }
func Errorln(args ...any)                 { write(sevErr, "", args...) }

func write(sev severity, format string, args ...any) {
	var msg string
	if format == "" {
		msg = fmt.Sprintln(args...)
	} else {
		msg = fmt.Sprintf(format, args...)
		if len(msg) == 0 || msg[len(msg)-1] != '\n' {
			msg += "\n"
		}
	}
	line := fmt.Sprintf("%s%s %s", sevTag[sev], time.Now().Format("0102 15:04:05.000000"), msg)

	mu.Lock()
	defer mu.Unlock()
	if toStderr {
		os.Stderr.WriteString(line)
		return
	}
	io.WriteString(out, line)
	if alsoToStderr || sev >= sevErr {
		os.Stderr.WriteString(line)
	}
	if sev >= sevWarn && errOut != out {
		io.WriteString(errOut, line)
	}
}

// Flush is a no-op for the unbuffered writer; kept for call-site parity
// with the storage-node logger this package mirrors.
func Flush(...bool) {}
