package vm

import (
	"bytes"
	"reflect"
	"testing"
)

func sampleProgram(t *testing.T) *Program {
	t.Helper()
	child := NewAssembler("sample:block@2")
	child.Pop()
	child.PushLocalDepth(1, 0)
	child.Ret()
	cp := finish(t, child)

	a := NewAssembler("sample")
	handler := a.NewLabel()
	a.SetLine(1)
	a.PushLiteral(Int(-5))
	a.SetLocal(0)
	a.Pop()
	a.SetLine(2)
	a.SetupUnwind(handler, EnsureType)
	a.CreateBlock(cp)
	a.Send("call", 0, false)
	a.PopUnwind()
	a.Ret()
	a.Mark(handler)
	a.PushLiteral(Str("cleanup"))
	a.Pop()
	a.Reraise()
	p := finish(t, a)
	info, err := Verify(p)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	p.StackSize = info.MaxDepth
	return p
}

func TestWire_RoundTrip(t *testing.T) {
	p := sampleProgram(t)

	data, err := MarshalProgram(p)
	if err != nil {
		t.Fatalf("MarshalProgram: %v", err)
	}
	got, err := UnmarshalProgram(data)
	if err != nil {
		t.Fatalf("UnmarshalProgram: %v", err)
	}
	if !reflect.DeepEqual(got, p) {
		t.Errorf("round trip mismatch:\n got %s\nwant %s", got.Disassemble(), p.Disassemble())
	}
}

func TestWire_Deterministic(t *testing.T) {
	d1, err := MarshalProgram(sampleProgram(t))
	if err != nil {
		t.Fatalf("MarshalProgram: %v", err)
	}
	d2, err := MarshalProgram(sampleProgram(t))
	if err != nil {
		t.Fatalf("MarshalProgram: %v", err)
	}
	if !bytes.Equal(d1, d2) {
		t.Error("equal programs encoded differently")
	}
}

func TestWire_RoundTripRuns(t *testing.T) {
	data, err := MarshalProgram(sampleProgram(t))
	if err != nil {
		t.Fatalf("MarshalProgram: %v", err)
	}
	p, err := UnmarshalProgram(data)
	if err != nil {
		t.Fatalf("UnmarshalProgram: %v", err)
	}

	v, err := NewInterpreter().Run(p)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if v != int64(-5) {
		t.Errorf("result = %s, want -5", Inspect(v))
	}
}

func TestWire_Garbage(t *testing.T) {
	if _, err := UnmarshalProgram([]byte{0xff, 0x00, 0x13}); err == nil {
		t.Error("expected error decoding garbage")
	}
}
