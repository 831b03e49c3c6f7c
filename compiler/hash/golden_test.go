package hash

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/garnet/compiler"
)

// TestGoldenFiles verifies that known trees produce expected hashes.
// If the golden files don't exist, they are created (first run).
// This prevents accidental format drift.
func TestGoldenFiles(t *testing.T) {
	cases := []struct {
		name string
		node compiler.Node
	}{
		{
			name: "int_literal",
			node: &compiler.IntLiteral{Value: 42},
		},
		{
			name: "ensure_block",
			node: sampleTree(),
		},
		{
			name: "rescue_chain",
			node: &compiler.Rescue{
				Body: &compiler.Send{Name: "risky"},
				Rescue: &compiler.RescueCondition{
					Conditions: &compiler.ArrayLiteral{Body: []compiler.Node{&compiler.ConstFind{Name: "TypeError"}}},
					Body:       &compiler.StringLiteral{Value: "type"},
					Next: &compiler.RescueCondition{
						Splat: &compiler.RescueSplat{Value: &compiler.ConstFind{Name: "ERRORS"}},
						Body:  &compiler.Retry{},
					},
				},
			},
		},
		{
			name: "masgn_splat",
			node: &compiler.MAsgn{
				Left: &compiler.ArrayLiteral{Body: []compiler.Node{
					&compiler.LocalVariableAssignment{Var: &compiler.LocalRef{Slot: 0}},
				}},
				Right: &compiler.ArrayLiteral{Body: []compiler.Node{&compiler.IntLiteral{Value: 1}}},
				Splat: &compiler.SplatAssignment{Value: &compiler.LocalVariableAssignment{Var: &compiler.LocalRef{Slot: 1}}},
			},
		},
		{
			name: "scoped_constant",
			node: &compiler.ConstAccess{
				Parent: &compiler.ConstAccess{Parent: &compiler.ConstAtTop{Name: "A"}, Name: "B"},
				Name:   "C",
			},
		},
	}

	goldenDir := filepath.Join("testdata")
	if err := os.MkdirAll(goldenDir, 0o755); err != nil {
		t.Fatalf("create testdata dir: %v", err)
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data := Serialize(tc.node)
			h := HashNode(tc.node)

			serializedHex := hex.EncodeToString(data)
			hashHex := Key(h)

			goldenPath := filepath.Join(goldenDir, tc.name+".golden")
			expected, err := os.ReadFile(goldenPath)
			if err != nil {
				// First run: create golden file
				content := serializedHex + "\n" + hashHex + "\n"
				if writeErr := os.WriteFile(goldenPath, []byte(content), 0o644); writeErr != nil {
					t.Fatalf("write golden file: %v", writeErr)
				}
				t.Logf("created golden file: %s", goldenPath)
				return
			}

			lines := strings.Split(strings.TrimSpace(string(expected)), "\n")
			if len(lines) != 2 {
				t.Fatalf("golden file %s: expected 2 lines, got %d", goldenPath, len(lines))
			}

			if serializedHex != lines[0] {
				t.Errorf("serialized bytes mismatch:\n  got:  %s\n  want: %s", serializedHex, lines[0])
			}
			if hashHex != lines[1] {
				t.Errorf("hash mismatch:\n  got:  %s\n  want: %s", hashHex, lines[1])
			}
		})
	}
}
