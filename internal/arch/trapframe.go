// Package arch holds the architecture-specific data contract at the
// user/kernel boundary. Everything below it (boot assembly, the trap
// vector, the SBI interface) is out of scope; this package is the shape a
// real port's trap handler would fill in before calling the dispatcher.
package arch

// TrapFrame is the saved register set at a syscall trap, in the RISC-V
// calling convention the native ABI assumes: a7 carries the syscall
// number, a0..a5 carry arguments, a0 also carries the return value, and
// sepc is the program counter at the moment of the trap.
type TrapFrame struct {
	Sepc uint64
	A    [8]uint64
}

// SyscallNumber reads the syscall number out of a7.
func (tf *TrapFrame) SyscallNumber() uint64 { return tf.A[7] }

// Arg returns register a<n>; arguments occupy a0..a5. Panics if n is
// outside 0..7.
func (tf *TrapFrame) Arg(n int) uint64 { return tf.A[n] }

func (tf *TrapFrame) A0() uint64 { return tf.A[0] }
func (tf *TrapFrame) A1() uint64 { return tf.A[1] }
func (tf *TrapFrame) A2() uint64 { return tf.A[2] }
func (tf *TrapFrame) A3() uint64 { return tf.A[3] }
func (tf *TrapFrame) A4() uint64 { return tf.A[4] }
func (tf *TrapFrame) A5() uint64 { return tf.A[5] }

// SetReturn writes v into a0, the slot the trap-return path copies back
// into the user register file.
func (tf *TrapFrame) SetReturn(v uint64) { tf.A[0] = v }

// SetReturnErrno writes a negative errno encoding into a0, reinterpreted
// as the unsigned bit pattern the register file actually stores.
func (tf *TrapFrame) SetReturnErrno(errno int) { tf.A[0] = uint64(int64(errno)) }

// PC returns the program counter at the moment of the trap, the value
// the dispatcher resolves an ABI zone against.
func (tf *TrapFrame) PC() uint64 { return tf.Sepc }
