// Package xlog provides leveled, verbosity-gated logging for the sheep
// storage core. It is a thin wrapper over glog, in the same spirit as the
// teacher corpus's own 3rdparty/glog shim: callers gate expensive formatting
// behind FastV instead of paying for it unconditionally.
package xlog

import (
	"github.com/golang/glog"
)

// FastV reports whether verbose logging at the given level is enabled,
// letting callers skip building a log line's arguments entirely when it
// isn't.
func FastV(level int32) bool {
	return bool(glog.V(glog.Level(level)))
}

func Infof(format string, args ...interface{})    { glog.Infof(format, args...) }
func Warningf(format string, args ...interface{}) { glog.Warningf(format, args...) }
func Errorf(format string, args ...interface{})   { glog.Errorf(format, args...) }
func Fatalf(format string, args ...interface{})   { glog.Fatalf(format, args...) }

func Infoln(args ...interface{})    { glog.Infoln(args...) }
func Warningln(args ...interface{}) { glog.Warningln(args...) }
func Errorln(args ...interface{})   { glog.Errorln(args...) }

// Flush flushes any pending log I/O; callers invoke this before process exit.
func Flush() { glog.Flush() }
