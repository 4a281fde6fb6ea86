package linker

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// FatalError is the panic payload raised by Fatal, mirroring storage's own
// taxonomy (spec.md §7): programming invariant violations, unsupported
// inputs, and resource exhaustion are all fatal and abort the process;
// I/O failures propagate as ordinary errors instead (Preprocess and Surgery
// return the error of every failed open, map, write or truncate).
type FatalError struct {
	Op  string
	Msg string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

var log = logrus.New()

// SetVerbose mirrors storage.SetVerbose and the teacher's VerboseMode
// toggle (elf_complete.go), gating per-phase diagnostic output.
func SetVerbose(verbose bool) {
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
}

// Fatal reports an unsupported input or invariant violation and panics with
// a *FatalError. cmd/surgelink recovers at its outermost entry point and
// turns this into exit code -1 per spec.md §6.
func Fatal(op, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.WithFields(logrus.Fields{"component": "linker", "op": op}).Error(msg)
	panic(&FatalError{Op: op, Msg: msg})
}

// Warn mirrors the original's one-shot warning for indirect branches
// (spec.md §4.6 step 5: "emit a one-shot warning but do not fail").
func Warn(op, format string, args ...interface{}) {
	log.WithFields(logrus.Fields{"component": "linker", "op": op}).Warn(fmt.Sprintf(format, args...))
}
