package vm

import (
	"strings"
)

// ---------------------------------------------------------------------------
// Message dispatch for the built-in types
// ---------------------------------------------------------------------------

// send dispatches name to recv. Private sends consult the builtin table
// first, mirroring receiverless calls of Kernel methods.
func (i *Interpreter) send(f *frame, recv Value, name string, args []Value, private bool) (Value, error) {
	if private {
		if fn, ok := i.builtins[name]; ok {
			return fn(i, recv, args)
		}
	}

	switch r := recv.(type) {
	case *Module:
		if v, ok, err := i.sendModule(f, r, name, args); ok {
			return v, err
		}
	case *Array:
		if v, ok, err := i.sendArray(f, r, name, args); ok {
			return v, err
		}
	case *GlobalTable:
		if v, ok := sendGlobals(r, name, args); ok {
			return v, nil
		}
	case *Variables:
		if v, ok := sendVariables(r, name, args); ok {
			return v, nil
		}
	case *Block:
		if name == "call" {
			return i.callBlock(r, args)
		}
	case *Object:
		switch name {
		case "message":
			return r.Message, nil
		case "class":
			return r.Class, nil
		case "instance_variable_defined?":
			if n, ok := nameArg(args); ok {
				_, found := r.Ivars[n]
				return found, nil
			}
		}
	}

	switch name {
	case "==", "===":
		if len(args) == 1 {
			return Equal(recv, args[0]), nil
		}
	case "nil?":
		return recv == nil, nil
	case "instance_variable_defined?":
		return false, nil
	}
	return nil, i.raiseNew("NoMethodError", "undefined method '%s' for %s", name, Inspect(recv))
}

func nameArg(args []Value) (string, bool) {
	if len(args) == 0 {
		return "", false
	}
	switch n := args[0].(type) {
	case Symbol:
		return string(n), true
	case string:
		return n, true
	}
	return "", false
}

func (i *Interpreter) sendModule(f *frame, m *Module, name string, args []Value) (Value, bool, error) {
	switch name {
	case "===":
		if len(args) != 1 {
			break
		}
		return i.kindOf(args[0], m), true, nil

	case "const_defined?":
		n, ok := nameArg(args)
		if !ok {
			break
		}
		_, found := m.lookupConst(n)
		if !found && m == i.Object {
			_, found = i.Object.Consts[n]
		}
		return found, true, nil

	case "const_path_defined?":
		path, ok := nameArg(args)
		if !ok {
			break
		}
		return i.constPathDefined(m, path), true, nil

	case "const_set":
		n, ok := nameArg(args)
		if !ok || len(args) != 2 {
			break
		}
		if mod, ok := args[1].(*Module); ok && mod.Name == "" {
			mod.Name, mod.Lexical = n, m
		}
		m.Consts[n] = args[1]
		return args[1], true, nil

	case "class_variable_defined?":
		n, ok := nameArg(args)
		if !ok {
			break
		}
		_, found := m.lookupCVar(n)
		return found, true, nil

	case "class_variable_get":
		n, ok := nameArg(args)
		if !ok {
			break
		}
		owner, found := m.lookupCVar(n)
		if !found {
			return nil, true, i.raiseNew("NameError", "uninitialized class variable %s in %s", n, m.Path())
		}
		return owner.CVars[n], true, nil

	case "class_variable_set":
		n, ok := nameArg(args)
		if !ok || len(args) != 2 {
			break
		}
		owner, found := m.lookupCVar(n)
		if !found {
			owner = m
		}
		owner.CVars[n] = args[1]
		return args[1], true, nil

	case "new":
		if !m.isSubclassOf(i.exceptionClass) {
			return NewObject(m), true, nil
		}
		msg := m.Name
		if len(args) > 0 {
			if s, ok := args[0].(string); ok {
				msg = s
			}
		}
		return i.NewException(m, msg), true, nil

	case "name":
		return m.Path(), true, nil

	case "last_match=":
		if m != i.Regexp || len(args) != 1 {
			break
		}
		f.vars.LastMatch = args[0]
		return args[0], true, nil
	}
	return nil, false, nil
}

// constPathDefined checks "A::B::C" starting at m without raising.
func (i *Interpreter) constPathDefined(m *Module, path string) bool {
	segments := strings.Split(path, "::")
	var cur Value
	var ok bool
	if m == i.Object {
		cur, ok = i.Object.Consts[segments[0]]
	} else {
		cur, ok = i.lexicalConst(m, segments[0])
	}
	if !ok {
		return false
	}
	for _, seg := range segments[1:] {
		mod, isMod := cur.(*Module)
		if !isMod {
			return false
		}
		if cur, ok = mod.lookupConst(seg); !ok {
			return false
		}
	}
	return true
}

// kindOf implements Module#=== for the built-in value types.
func (i *Interpreter) kindOf(v Value, m *Module) bool {
	if m == i.Object {
		return true
	}
	switch x := v.(type) {
	case *Object:
		return x.Class.isSubclassOf(m)
	case *Module:
		return false
	}
	return false
}

// caseEqual evaluates matcher === v with full dispatch.
func (i *Interpreter) caseEqual(f *frame, matcher, v Value) (bool, error) {
	r, err := i.send(f, matcher, "===", []Value{v}, false)
	if err != nil {
		return false, err
	}
	return Truthy(r), nil
}

func (i *Interpreter) sendArray(f *frame, a *Array, name string, args []Value) (Value, bool, error) {
	switch name {
	case "__rescue_match__":
		if len(args) != 1 {
			break
		}
		for _, m := range a.Elems {
			ok, err := i.caseEqual(f, m, args[0])
			if err != nil {
				return nil, true, err
			}
			if ok {
				return true, true, nil
			}
		}
		return false, true, nil

	case "+":
		if len(args) != 1 {
			break
		}
		other, ok := args[0].(*Array)
		if !ok {
			return nil, true, i.raiseNew("TypeError", "no implicit conversion of %s into Array", Inspect(args[0]))
		}
		elems := make([]Value, 0, len(a.Elems)+len(other.Elems))
		elems = append(elems, a.Elems...)
		return NewArray(append(elems, other.Elems...)...), true, nil

	case "size", "length":
		return int64(len(a.Elems)), true, nil

	case "[]":
		if len(args) != 1 {
			break
		}
		idx, ok := args[0].(int64)
		if !ok {
			break
		}
		if idx < 0 {
			idx += int64(len(a.Elems))
		}
		if idx < 0 || idx >= int64(len(a.Elems)) {
			return nil, true, nil
		}
		return a.Elems[idx], true, nil
	}
	return nil, false, nil
}

func sendGlobals(g *GlobalTable, name string, args []Value) (Value, bool) {
	n, ok := nameArg(args)
	if !ok {
		return nil, false
	}
	switch name {
	case "[]":
		return g.Get(n), true
	case "[]=":
		if len(args) != 2 {
			return nil, false
		}
		g.Set(n, args[1])
		return args[1], true
	case "key?":
		return g.Has(n), true
	}
	return nil, false
}

func sendVariables(vars *Variables, name string, args []Value) (Value, bool) {
	switch name {
	case "last_match":
		return vars.LastMatch, true

	case "back_ref":
		kind, ok := nameArg(args)
		if !ok {
			return nil, false
		}
		md, ok := vars.LastMatch.(*MatchData)
		if !ok {
			return nil, true
		}
		switch kind {
		case "&":
			return md.group(0), true
		case "`":
			return md.Pre, true
		case "'":
			return md.Post, true
		case "+":
			return md.group(len(md.Groups) - 1), true
		}
		return nil, true

	case "nth_ref":
		if len(args) != 1 {
			return nil, false
		}
		n, ok := args[0].(int64)
		if !ok {
			return nil, false
		}
		md, ok := vars.LastMatch.(*MatchData)
		if !ok {
			return nil, true
		}
		return md.group(int(n)), true
	}
	return nil, false
}

func (m *MatchData) group(n int) Value {
	if n < 0 || n >= len(m.Groups) {
		return nil
	}
	return m.Groups[n]
}

// builtinRaise implements Kernel#raise.
func builtinRaise(i *Interpreter, self Value, args []Value) (Value, error) {
	switch len(args) {
	case 0:
		if i.exception != nil {
			return nil, i.raise(i.exception)
		}
		return nil, i.raiseNew("RuntimeError", "unhandled exception")
	case 1:
		return nil, i.raiseValue(args[0])
	}
	class, ok := args[0].(*Module)
	msg, isStr := args[1].(string)
	if !ok || !isStr || !class.isSubclassOf(i.exceptionClass) {
		return nil, i.raiseNew("TypeError", "exception class/object expected")
	}
	return nil, i.raise(i.NewException(class, msg))
}
