package oplog

import (
	"strings"
	"testing"

	"github.com/qutlas/cadmium/pkg/kernel"
	"github.com/qutlas/cadmium/pkg/kernel/primitive"
)

// hasFinding reports whether fs holds a finding of severity s at path whose
// message contains substr.
func hasFinding(fs Findings, s Severity, path, substr string) bool {
	for _, f := range fs {
		if f.Severity == s && f.Path == path && strings.Contains(f.Message, substr) {
			return true
		}
	}
	return false
}

func TestValidateCleanLog(t *testing.T) {
	if fs := Validate(bracketLog(), nil); len(fs) != 0 {
		t.Errorf("Validate() = %v, want no findings", fs)
	}
}

func TestValidateFindings(t *testing.T) {
	box := CreateBox{Length: 1, Width: 1, Height: 1}
	known := ResolverFunc(func(id string) (*kernel.Mesh, error) {
		if id == "known" {
			return primitive.Box(1, 1, 1)
		}
		return nil, kernel.Errorf(kernel.KindInvalidInput, "resolve", "geometry %q not found", id)
	})

	tests := []struct {
		name     string
		log      Log
		severity Severity
		path     string
		substr   string
	}{
		{"empty", Log{}, SeverityError, "", "empty operation log"},
		{"nil entry", Log{box, nil}, SeverityError, "1", "nil entry"},
		{"modifier first", Log{Translate{X: 1}, box}, SeverityError, "0", "no current mesh"},
		{"unknown boolean", Log{box, Boolean{Operation: "xor", Other: LogOperand(Log{box})}}, SeverityError, "1", "xor"},
		{"two sources", Log{box, Boolean{Operation: "union", Other: Operand{GeometryID: "known", Log: Log{box}}}}, SeverityError, "1.other", "got 2"},
		{"missing reference", Log{box, Boolean{Operation: "union", Other: RefOperand("gone")}}, SeverityError, "1.other", "not found"},
		{"bad operand mesh", Log{box, Boolean{Operation: "union", Other: MeshOperand(&kernel.Mesh{Vertices: []float64{0, 0, 0}, Faces: []uint32{0, 0, 7}})}}, SeverityError, "1.other", ""},
		{"nested empty", Log{box, Boolean{Operation: "subtract", Other: LogOperand(Log{box, Boolean{Operation: "union", Other: Operand{Log: Log{}}}})}}, SeverityError, "1.other.1.other", "got 0"},
		{"nested modifier first", Log{box, Boolean{Operation: "union", Other: LogOperand(Log{Rotate{Z: 90}})}}, SeverityError, "1.other.0", "no current mesh"},
		{"discarded work", Log{box, Translate{X: 1}, box}, SeverityWarning, "2", "discards the 2 entries"},
		{"zero translate", Log{box, Translate{}}, SeverityWarning, "1", "no effect"},
		{"zero rotate", Log{box, Rotate{}}, SeverityWarning, "1", "no effect"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := Validate(tt.log, known)
			if !hasFinding(fs, tt.severity, tt.path, tt.substr) {
				t.Errorf("Validate() = %v, want %s at %q containing %q", fs, tt.severity, tt.path, tt.substr)
			}
		})
	}
}

func TestValidateReportsEveryError(t *testing.T) {
	l := Log{
		Translate{X: 1},
		CreateBox{Length: 1, Width: 1, Height: 1},
		Boolean{Operation: "melt", Other: RefOperand("gone")},
	}
	fs := Validate(l, ResolverFunc(func(id string) (*kernel.Mesh, error) {
		return nil, kernel.Errorf(kernel.KindInvalidInput, "resolve", "geometry %q not found", id)
	}))
	if got := len(fs.Errors()); got != 3 {
		t.Fatalf("len(Errors()) = %d, want 3: %v", got, fs)
	}
	err := fs.Err()
	if kernel.KindOf(err) != kernel.KindInvalidInput {
		t.Errorf("KindOf(Err()) = %v, want INVALID_INPUT", kernel.KindOf(err))
	}
	for _, want := range []string{"entry 0", "melt", `"gone"`} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Err() = %v, want it to mention %s", err, want)
		}
	}
}

func TestValidateWarningsDoNotBlock(t *testing.T) {
	fs := Validate(Log{CreateBox{Length: 1, Width: 1, Height: 1}, Rotate{}}, nil)
	if len(fs.Warnings()) != 1 || fs.Err() != nil {
		t.Errorf("Validate() = %v, want one warning and no error", fs)
	}
}

func TestValidateDepthLimit(t *testing.T) {
	l := Log{CreateBox{Length: 1, Width: 1, Height: 1}}
	for i := 0; i < 3; i++ {
		l = Log{CreateBox{Length: 1, Width: 1, Height: 1}, Boolean{Operation: "union", Other: LogOperand(l)}}
	}
	in := &Interpreter{MaxDepth: 2}
	if fs := in.Validate(l); !hasFinding(fs, SeverityError, "1.other.1.other.1.other", "nested deeper than 2") {
		t.Errorf("Validate() = %v, want depth error", fs)
	}
	if fs := Validate(l, nil); len(fs) != 0 {
		t.Errorf("Validate() with default depth = %v, want none", fs)
	}
}

func TestSeverityString(t *testing.T) {
	if SeverityError.String() != "error" || SeverityWarning.String() != "warning" || Severity(9).String() != "Severity(9)" {
		t.Error("unexpected Severity strings")
	}
}
