// Package kernerr is the kernel's error taxonomy. Components return a
// closed set of Kinds rather than ad-hoc sentinel values, so the syscall
// layer can translate any failure to an ABI-specific encoding in one place.
package kernerr

import (
	"errors"
	"fmt"
)

// Kind is a classification of failure, independent of which subsystem
// produced it. FS drivers, the VFS layer, and the task/mm layers all share
// this set instead of inventing their own per-package error values.
type Kind int

const (
	NotFound Kind = iota
	AlreadyExists
	NotDirectory
	IsDirectory
	NotRegularFile
	ReadOnly
	Busy
	PermissionDenied
	BrokenPipe
	WouldBlock
	NoSpace
	Quota
	LoopDetected
	InvalidArgument
	UnsupportedProtocol
	UnknownAbi
	NotSupported
	Fault
)

var kindNames = map[Kind]string{
	NotFound:            "not found",
	AlreadyExists:       "already exists",
	NotDirectory:        "not a directory",
	IsDirectory:         "is a directory",
	NotRegularFile:      "not a regular file",
	ReadOnly:            "read-only",
	Busy:                "busy",
	PermissionDenied:    "permission denied",
	BrokenPipe:          "broken pipe",
	WouldBlock:          "would block",
	NoSpace:             "no space",
	Quota:               "quota exceeded",
	LoopDetected:        "symlink loop detected",
	InvalidArgument:     "invalid argument",
	UnsupportedProtocol: "unsupported protocol",
	UnknownAbi:          "unknown abi",
	NotSupported:        "not supported",
	Fault:               "fault",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// errno is the native ABI's negative-small-integer encoding of a Kind.
// Reserving negative integers uniformly for every failing syscall, memory
// syscalls included, removes the usize::MAX collision the native ABI
// historically relied on (spec.md section 9).
var errno = map[Kind]int{
	NotFound:            1,
	AlreadyExists:       2,
	NotDirectory:        3,
	IsDirectory:         4,
	NotRegularFile:      5,
	ReadOnly:            6,
	Busy:                7,
	PermissionDenied:    8,
	BrokenPipe:          9,
	WouldBlock:          10,
	NoSpace:             11,
	Quota:               12,
	LoopDetected:        13,
	InvalidArgument:     14,
	UnsupportedProtocol: 15,
	UnknownAbi:          16,
	NotSupported:        17,
	Fault:               18,
}

// Error is a kernerr.Kind paired with a message and an optional cause. It
// implements Unwrap so errors.Is/errors.As work against both the Kind (via
// Is) and any wrapped cause.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is a *Error of the same Kind, so callers can
// write errors.Is(err, kernerr.New(kernerr.NotFound, "")) or, more commonly,
// use the Kind-matching helpers below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an *Error of the given Kind.
func New(kind Kind, format string, arg ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, arg...)}
}

// Wrap constructs an *Error of the given Kind with an underlying cause.
func Wrap(kind Kind, cause error, format string, arg ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, arg...), Cause: cause}
}

// KindOf extracts the Kind from err, walking its Unwrap chain. Returns
// (Fault, false) if err does not carry a *Error anywhere in the chain —
// Fault is the conservative choice since an unclassified failure should
// never be mistaken for a successful "not found"-style condition.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return Fault, false
}

// Errno maps err to the native ABI's negative-small-integer return
// encoding. Returns 0 for a nil error (success) and -int(Fault)'s errno for
// any error that does not carry a recognized Kind.
func Errno(err error) int {
	if err == nil {
		return 0
	}
	kind, _ := KindOf(err)
	if n, ok := errno[kind]; ok {
		return -n
	}
	return -errno[Fault]
}

// Fatal panics on an internal invariant violation — a corrupted mount tree
// or zone map, never a user-facing condition. User errors are always
// returned, never panicked; this is the one deliberate exception.
func Fatal(format string, arg ...interface{}) {
	panic(fmt.Sprintf("kernerr: fatal: "+format, arg...))
}
