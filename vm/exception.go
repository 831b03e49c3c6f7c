package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Exception Handling Infrastructure
// ---------------------------------------------------------------------------

// unwindEntry is an installed handler. sp is the stack depth at setup time;
// the stack is cut back to it before the handler runs.
type unwindEntry struct {
	handler int
	kind    int
	sp      int
}

// raised carries an exception object or an *Unwind up the Go call stack
// until a frame with a matching handler takes it.
type raised struct {
	payload Value
}

func (r *raised) Error() string {
	return "raised " + Inspect(r.payload)
}

// RaiseError is returned by Run when an exception escapes every frame.
type RaiseError struct {
	Exception *Object
}

func (e *RaiseError) Error() string {
	if e.Exception.Message == "" {
		return e.Exception.Class.Path()
	}
	return fmt.Sprintf("%s: %s", e.Exception.Class.Path(), e.Exception.Message)
}

// UnwindError is returned by Run when a break escapes every frame.
type UnwindError struct {
	Unwind *Unwind
}

func (e *UnwindError) Error() string {
	return "break from proc-closure (" + Inspect(e.Unwind.Value) + ")"
}

// NewException creates an exception instance of class with msg.
func (i *Interpreter) NewException(class *Module, msg string) *Object {
	exc := NewObject(class)
	exc.Message = msg
	return exc
}

// IsException reports whether v is an instance of an exception class.
func (i *Interpreter) IsException(v Value) bool {
	obj, ok := v.(*Object)
	return ok && obj.Class.isSubclassOf(i.exceptionClass)
}

// raise makes payload the current exception state and starts unwinding.
func (i *Interpreter) raise(payload Value) error {
	i.exception = payload
	return &raised{payload: payload}
}

// raiseNew raises a fresh exception of the named core class.
func (i *Interpreter) raiseNew(className, format string, args ...any) error {
	class, _ := i.Object.Consts[className].(*Module)
	if class == nil {
		class = i.runtimeError
	}
	return i.raise(i.NewException(class, fmt.Sprintf(format, args...)))
}

// Raise raises a new exception of the named top-level class. Builtins
// return its result to raise.
func (i *Interpreter) Raise(className, format string, args ...any) error {
	return i.raiseNew(className, format, args...)
}

// raiseValue implements RAISE_EXC and Kernel#raise for a single argument.
func (i *Interpreter) raiseValue(v Value) error {
	switch x := v.(type) {
	case *Object:
		if i.IsException(x) {
			return i.raise(x)
		}
	case *Module:
		if x.isSubclassOf(i.exceptionClass) {
			return i.raise(i.NewException(x, x.Name))
		}
	case string:
		return i.raise(i.NewException(i.runtimeError, x))
	}
	return i.raiseNew("TypeError", "exception class/object expected")
}

// raiseUnwind starts a break or return unwind from the current state.
func (i *Interpreter) raiseUnwind(kind UnwindKind, v Value) error {
	return i.raise(&Unwind{Kind: kind, Value: v, Prior: i.exception})
}

// handle transfers control to the innermost handler of f that accepts r.
// Rescue regions only accept exceptions; ensure regions accept everything.
func (i *Interpreter) handle(f *frame, r *raised) bool {
	_, isUnwind := r.payload.(*Unwind)
	for len(f.unwinds) > 0 {
		e := f.unwinds[len(f.unwinds)-1]
		f.unwinds = f.unwinds[:len(f.unwinds)-1]
		if isUnwind && e.kind == RescueType {
			continue
		}
		f.stack = f.stack[:e.sp]
		f.ip = e.handler
		return true
	}
	return false
}
