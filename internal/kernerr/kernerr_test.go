package kernerr

import (
	"errors"
	"testing"
)

func TestErrnoMapping(t *testing.T) {
	examples := []struct {
		kind Kind
		want int
	}{
		{NotFound, -1},
		{AlreadyExists, -2},
		{Busy, -7},
		{Fault, -18},
	}

	for _, x := range examples {
		err := New(x.kind, "boom")
		if got := Errno(err); got != x.want {
			t.Fatalf("Errno(%v) = %v, want %v", x.kind, got, x.want)
		}
	}
}

func TestErrnoNilIsZero(t *testing.T) {
	if got := Errno(nil); got != 0 {
		t.Fatalf("Errno(nil) = %v, want 0", got)
	}
}

func TestErrnoUnclassifiedIsFault(t *testing.T) {
	if got := Errno(errors.New("plain")); got != -errno[Fault] {
		t.Fatalf("Errno(plain) = %v, want %v", got, -errno[Fault])
	}
}

func TestKindOf(t *testing.T) {
	err := New(NotDirectory, "path %q", "/foo")

	kind, ok := KindOf(err)
	if !ok {
		t.Fatalf("KindOf(%v) ok = false, want true", err)
	}
	if kind != NotDirectory {
		t.Fatalf("KindOf(%v) = %v, want %v", err, kind, NotDirectory)
	}

	if _, ok := KindOf(errors.New("plain")); ok {
		t.Fatalf("KindOf(plain) ok = true, want false")
	}
}

func TestErrorsIsMatchesKind(t *testing.T) {
	cause := errors.New("underlying")
	err := Wrap(ReadOnly, cause, "mount %v", "/mnt")

	if !errors.Is(err, New(ReadOnly, "")) {
		t.Fatalf("errors.Is(%v, ReadOnly sentinel) = false, want true", err)
	}
	if errors.Is(err, New(Busy, "")) {
		t.Fatalf("errors.Is(%v, Busy sentinel) = true, want false", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is(%v, cause) = false, want true", err)
	}
}

func TestFatalPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("Fatal did not panic")
		}
	}()
	Fatal("mount tree corrupted: %v", "dup entry")
}
