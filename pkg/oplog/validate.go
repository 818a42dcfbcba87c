package oplog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/qutlas/cadmium/pkg/kernel"
	"github.com/qutlas/cadmium/pkg/kernel/csg"
)

// Severity indicates whether a finding blocks replay or is informational.
type Severity int

const (
	SeverityError   Severity = iota // blocks replay
	SeverityWarning                 // informational
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// Finding describes one problem in a log. Path locates the entry, for
// example "2.other.0" for the first entry of the operand log of entry 2.
// Path is empty for log-level findings.
type Finding struct {
	Path     string
	Message  string
	Severity Severity
}

func (f Finding) Error() string {
	if f.Path == "" {
		return fmt.Sprintf("[%s] %s", f.Severity, f.Message)
	}
	return fmt.Sprintf("[%s] entry %s: %s", f.Severity, f.Path, f.Message)
}

// Findings is the result of Validate.
type Findings []Finding

// Errors returns the blocking findings.
func (fs Findings) Errors() Findings { return fs.filter(SeverityError) }

// Warnings returns the informational findings.
func (fs Findings) Warnings() Findings { return fs.filter(SeverityWarning) }

func (fs Findings) filter(s Severity) Findings {
	var out Findings
	for _, f := range fs {
		if f.Severity == s {
			out = append(out, f)
		}
	}
	return out
}

// Err folds the blocking findings into one INVALID_INPUT error, or
// returns nil when there are none.
func (fs Findings) Err() error {
	errs := fs.Errors()
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, f := range errs {
		msgs[i] = f.Error()
	}
	return kernel.Errorf(kernel.KindInvalidInput, "validate log", "%s", strings.Join(msgs, "; "))
}

// Validate checks the structure of l without building geometry and
// reports every finding rather than stopping at the first. A nil r skips
// the geometryId lookup. Dimension checks are left to the kernel.
// Validate never mutates l.
func (in *Interpreter) Validate(l Log) Findings {
	v := validator{resolver: in.Resolver, maxDepth: in.maxDepth()}
	v.log(l, "", 0)
	return v.out
}

// Validate checks l with the default depth limit.
func Validate(l Log, r Resolver) Findings {
	return (&Interpreter{Resolver: r}).Validate(l)
}

type validator struct {
	resolver Resolver
	maxDepth int
	out      Findings
}

func (v *validator) add(path string, s Severity, format string, args ...any) {
	v.out = append(v.out, Finding{Path: path, Message: fmt.Sprintf(format, args...), Severity: s})
}

func join(prefix string, i int) string {
	if prefix == "" {
		return strconv.Itoa(i)
	}
	return prefix + "." + strconv.Itoa(i)
}

func (v *validator) log(l Log, prefix string, depth int) {
	if len(l) == 0 {
		v.add(prefix, SeverityError, "empty operation log")
		return
	}
	hasMesh := false
	modified := 0
	for i, e := range l {
		path := join(prefix, i)
		if e == nil {
			v.add(path, SeverityError, "nil entry")
			continue
		}
		if isCreation(e) {
			if hasMesh {
				v.add(path, SeverityWarning, "%s discards the %d entries before it", e.Kind(), modified+1)
			}
			hasMesh = true
			modified = 0
			continue
		}
		if !hasMesh {
			v.add(path, SeverityError, "%s: %v", e.Kind(), ErrNoCurrentMesh)
		}
		modified++
		v.modifier(e, path, depth)
	}
}

func (v *validator) modifier(e Entry, path string, depth int) {
	switch e := e.(type) {
	case Translate:
		if e == (Translate{}) {
			v.add(path, SeverityWarning, "translate by zero has no effect")
		}
	case Rotate:
		if e == (Rotate{}) {
			v.add(path, SeverityWarning, "rotate by zero has no effect")
		}
	case Boolean:
		if _, err := csg.ParseOp(e.Operation); err != nil {
			v.add(path, SeverityError, "%v", err)
		}
		v.operand(e.Other, path+".other", depth)
	}
}

func (v *validator) operand(o Operand, path string, depth int) {
	if n := o.sources(); n != 1 {
		v.add(path, SeverityError, "boolean operand must have exactly one of mesh, geometryId or log, got %d", n)
		return
	}
	switch {
	case o.Mesh != nil:
		if err := o.Mesh.Validate(); err != nil {
			v.add(path, SeverityError, "%v", err)
		}
	case o.GeometryID != "":
		if v.resolver == nil {
			return
		}
		if _, err := v.resolver.Resolve(o.GeometryID); err != nil {
			v.add(path, SeverityError, "%v", err)
		}
	default:
		if depth+1 > v.maxDepth {
			v.add(path, SeverityError, "operand logs nested deeper than %d", v.maxDepth)
			return
		}
		v.log(o.Log, path, depth+1)
	}
}

func isCreation(e Entry) bool {
	switch e.(type) {
	case CreateBox, CreateCylinder, CreateSphere, CreateCone, CreateTorus:
		return true
	}
	return false
}
