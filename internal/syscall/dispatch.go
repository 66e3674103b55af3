// Package syscall is the kernel's single syscall entry point: the
// trap handler's only job, once it has saved registers into a
// arch.TrapFrame, is to call Dispatch and resume the task on return.
package syscall

import (
	"github.com/petitstrawberry/Scarlet/internal/arch"
	"github.com/petitstrawberry/Scarlet/internal/klog"
	"github.com/petitstrawberry/Scarlet/internal/task"
)

// Dispatch resolves which ABI owns the program counter tf was trapped
// at and hands the trap frame to it. The resolved ABI is responsible for
// reading its own arguments out of tf and writing a result back via
// SetReturn/SetReturnErrno before returning; Dispatch itself never
// interprets a syscall number, matching the numeric dispatch-by-id shape
// every per-ABI syscall table already uses.
func Dispatch(t *task.Task, tf *arch.TrapFrame) error {
	instance := t.ResolveABI(tf.PC())
	if err := instance.HandleSyscall(t, tf); err != nil {
		klog.Error("syscall: task %d trapped at %#x: %v", t.Getpid(), tf.PC(), err)
		return err
	}
	return nil
}
