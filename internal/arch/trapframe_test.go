package arch

import "testing"

func TestTrapFrameAccessors(t *testing.T) {
	tf := &TrapFrame{Sepc: 0x1800}
	tf.A[7] = 1
	tf.A[0] = 42

	if got := tf.SyscallNumber(); got != 1 {
		t.Fatalf("SyscallNumber() = %v, want 1", got)
	}
	if got := tf.A0(); got != 42 {
		t.Fatalf("A0() = %v, want 42", got)
	}
	if got := tf.PC(); got != 0x1800 {
		t.Fatalf("PC() = %#x, want 0x1800", got)
	}
}

func TestSetReturnErrno(t *testing.T) {
	tf := &TrapFrame{}
	tf.SetReturnErrno(-1)

	if got := int64(tf.A0()); got != -1 {
		t.Fatalf("A0() as int64 = %v, want -1", got)
	}
}
