package engine

import (
	"fmt"
	"math"
	"strings"

	zygo "github.com/glycerine/zygomys/zygo"
	"github.com/qutlas/cadmium/pkg/kernel"
	"github.com/qutlas/cadmium/pkg/oplog"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource rewrites script source before passing it to zygomys:
//
//  1. Keyword conversion: :keyword -> "__kw_keyword" (string literal).
//     Keywords never collide with user variables of the same name.
//
//  2. Kebab-case to underscore: fillet-edges -> fillet_edges.
//     zygomys reads a hyphen inside an identifier as subtraction, so
//     hyphens between identifier characters become underscores outside of
//     strings and comments.
//
//  3. Line comments: ; and ;; become //, the zygomys comment marker.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		// Skip double-quoted string literals.
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Skip backtick-quoted string literals.
		if b[i] == '`' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '`' {
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// ; line comments.
		if b[i] == ';' {
			result = append(result, '/', '/')
			i++
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Transform :keyword to "__kw_keyword".
		if b[i] == ':' && i+1 < len(b) {
			// Preserve := (assignment operator).
			if b[i+1] == '=' {
				result = append(result, b[i], b[i+1])
				i += 2
				continue
			}
			// Check for keyword: colon followed by a letter.
			if isLetter(b[i+1]) {
				j := i + 1
				for j < len(b) && isKWChar(b[j]) {
					j++
				}
				kwName := string(b[i+1 : j])
				result = append(result, '"')
				result = append(result, []byte(kwPrefix)...)
				result = append(result, []byte(kwName)...)
				result = append(result, '"')
				i = j
				continue
			}
		}
		// Transform kebab-case identifiers: alpha-alpha -> alpha_alpha.
		// Only when hyphen sits between identifier characters (not a minus operator).
		if b[i] == '-' && i > 0 && i+1 < len(b) &&
			isIdentChar(b[i-1]) && isIdentStartChar(b[i+1]) {
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

func isIdentStartChar(c byte) bool {
	return isLetter(c)
}

// ---------------------------------------------------------------------------
// Script values
// ---------------------------------------------------------------------------

// sexpSteps is a fragment of an operation log, returned by every
// primitive, feature, transform and boolean builtin.
type sexpSteps struct {
	log oplog.Log
}

func (s *sexpSteps) SexpString(ps *zygo.PrintState) string {
	kinds := make([]string, len(s.log))
	for i, e := range s.log {
		kinds[i] = string(e.Kind())
	}
	return fmt.Sprintf("(steps %s)", strings.Join(kinds, " "))
}
func (s *sexpSteps) Type() *zygo.RegisteredType { return nil }

// sexpModel is a complete log built by (model ...). A model that ends up
// inside another model or boolean is consumed and not reported on its own.
type sexpModel struct {
	name     string
	log      oplog.Log
	material *kernel.Material
	consumed bool
}

func (m *sexpModel) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(model %q %d steps)", m.name, len(m.log))
}
func (m *sexpModel) Type() *zygo.RegisteredType { return nil }

// sexpRef names a cached geometry by ID.
type sexpRef struct {
	id string
}

func (r *sexpRef) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(ref %q)", r.id)
}
func (r *sexpRef) Type() *zygo.RegisteredType { return nil }

// session collects the models built during one evaluation.
type session struct {
	models []*sexpModel
}

// result returns the unconsumed models in creation order. A script that
// builds no model but ends in a step expression yields that expression as
// a model named "main".
func (s *session) result(last zygo.Sexp) []Model {
	out := []Model{}
	for _, m := range s.models {
		if !m.consumed {
			out = append(out, Model{Name: m.name, Log: m.log, Material: m.material})
		}
	}
	if len(s.models) == 0 {
		if st, ok := last.(*sexpSteps); ok {
			out = append(out, Model{Name: "main", Log: st.log})
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		name, ok := isKW(args[i])
		if ok {
			if i+1 < len(args) {
				result.kw[name] = args[i+1]
				i += 2
			} else {
				// Trailing keyword without a value.
				result.kw[name] = zygo.SexpNull
				i++
			}
		} else {
			result.positional = append(result.positional, args[i])
			i++
		}
	}
	return result
}

// param describes one numeric builtin argument, given either by keyword
// or at its position.
type param struct {
	name     string
	required bool
	integer  bool
}

// numbers resolves params from pa. Absent optional params are 0.
func numbers(fn string, pa kwArgs, params ...param) ([]float64, error) {
	known := make(map[string]bool, len(params))
	for _, p := range params {
		known[p.name] = true
	}
	for k := range pa.kw {
		if !known[k] {
			return nil, fmt.Errorf("%s: unknown keyword :%s", fn, k)
		}
	}
	if len(pa.positional) > len(params) {
		return nil, fmt.Errorf("%s: expected at most %d arguments, got %d", fn, len(params), len(pa.positional))
	}

	out := make([]float64, len(params))
	for i, p := range params {
		v, byKW := pa.kw[p.name]
		if i < len(pa.positional) {
			if byKW {
				return nil, fmt.Errorf("%s: %s given twice", fn, p.name)
			}
			v = pa.positional[i]
		} else if !byKW {
			if p.required {
				return nil, fmt.Errorf("%s: %s is required", fn, p.name)
			}
			continue
		}
		f, err := toFloat64(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", fn, p.name, err)
		}
		if p.integer && (f != math.Trunc(f) || f < 0) {
			return nil, fmt.Errorf("%s: %s must be a non-negative integer, got %v", fn, p.name, f)
		}
		out[i] = f
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a plain (non-keyword) string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok && !strings.HasPrefix(str.S, kwPrefix) {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toSteps returns the log fragment carried by a step or model value.
// Models are marked consumed.
func toSteps(s zygo.Sexp) (oplog.Log, error) {
	switch v := s.(type) {
	case *sexpSteps:
		return v.log, nil
	case *sexpModel:
		v.consumed = true
		return v.log, nil
	}
	return nil, fmt.Errorf("expected model or step, got %T (%s)", s, s.SexpString(nil))
}

// toOperand converts a boolean argument to an operand: a reference, or a
// step or model replayed as a nested log.
func toOperand(s zygo.Sexp) (oplog.Operand, error) {
	if r, ok := s.(*sexpRef); ok {
		return oplog.RefOperand(r.id), nil
	}
	l, err := toSteps(s)
	if err != nil {
		return oplog.Operand{}, fmt.Errorf("expected model, step or ref, got %T (%s)", s, s.SexpString(nil))
	}
	return oplog.LogOperand(l), nil
}

func steps(entries ...oplog.Entry) *sexpSteps {
	return &sexpSteps{log: oplog.Log(entries)}
}

// concat copies the given fragments into one log.
func concat(parts ...oplog.Log) oplog.Log {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make(oplog.Log, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

type builtin func(pa kwArgs) (zygo.Sexp, error)

// registerBuiltins installs the modelling builtins into a zygomys
// environment. Source code must be preprocessed with preprocessSource()
// before evaluation, so hyphenated names are registered with underscores.
func registerBuiltins(env *zygo.Zlisp, s *session) {
	add := func(name string, fn builtin) {
		env.AddFunction(name, func(env *zygo.Zlisp, _ string, args []zygo.Sexp) (zygo.Sexp, error) {
			return fn(parseArgs(args))
		})
	}

	// (box 100 50 30) or (box :length 100 :width 50 :height 30)
	add("box", func(pa kwArgs) (zygo.Sexp, error) {
		v, err := numbers("box", pa,
			param{name: "length", required: true}, param{name: "width", required: true}, param{name: "height", required: true})
		if err != nil {
			return zygo.SexpNull, err
		}
		return steps(oplog.CreateBox{Length: v[0], Width: v[1], Height: v[2]}), nil
	})

	// (cylinder :radius 5 :height 20 :segments 48)
	add("cylinder", func(pa kwArgs) (zygo.Sexp, error) {
		v, err := numbers("cylinder", pa,
			param{name: "radius", required: true}, param{name: "height", required: true}, param{name: "segments", integer: true})
		if err != nil {
			return zygo.SexpNull, err
		}
		return steps(oplog.CreateCylinder{Radius: v[0], Height: v[1], Segments: int(v[2])}), nil
	})

	// (sphere :radius 5 :segments-lat 16 :segments-lon 32)
	add("sphere", func(pa kwArgs) (zygo.Sexp, error) {
		v, err := numbers("sphere", pa,
			param{name: "radius", required: true}, param{name: "segments-lat", integer: true}, param{name: "segments-lon", integer: true})
		if err != nil {
			return zygo.SexpNull, err
		}
		return steps(oplog.CreateSphere{Radius: v[0], SegmentsLat: int(v[1]), SegmentsLon: int(v[2])}), nil
	})

	// (cone :radius 5 :height 10)
	add("cone", func(pa kwArgs) (zygo.Sexp, error) {
		v, err := numbers("cone", pa,
			param{name: "radius", required: true}, param{name: "height", required: true}, param{name: "segments", integer: true})
		if err != nil {
			return zygo.SexpNull, err
		}
		return steps(oplog.CreateCone{Radius: v[0], Height: v[1], Segments: int(v[2])}), nil
	})

	// (torus :major-radius 10 :minor-radius 2)
	add("torus", func(pa kwArgs) (zygo.Sexp, error) {
		v, err := numbers("torus", pa,
			param{name: "major-radius", required: true}, param{name: "minor-radius", required: true},
			param{name: "segments-major", integer: true}, param{name: "segments-minor", integer: true})
		if err != nil {
			return zygo.SexpNull, err
		}
		return steps(oplog.CreateTorus{
			MajorRadius: v[0], MinorRadius: v[1], SegmentsMajor: int(v[2]), SegmentsMinor: int(v[3]),
		}), nil
	})

	// (fillet-edges 5) or (fillet-edges :radius 5)
	add("fillet_edges", func(pa kwArgs) (zygo.Sexp, error) {
		v, err := numbers("fillet-edges", pa, param{name: "radius", required: true})
		if err != nil {
			return zygo.SexpNull, err
		}
		return steps(oplog.FilletEdges{Radius: v[0]}), nil
	})

	// (chamfer-edges 2) or (chamfer-edges :distance 2)
	add("chamfer_edges", func(pa kwArgs) (zygo.Sexp, error) {
		v, err := numbers("chamfer-edges", pa, param{name: "distance", required: true})
		if err != nil {
			return zygo.SexpNull, err
		}
		return steps(oplog.ChamferEdges{Distance: v[0]}), nil
	})

	// (translate 0 0 20) or (translate :z 20)
	add("translate", func(pa kwArgs) (zygo.Sexp, error) {
		v, err := numbers("translate", pa, param{name: "x"}, param{name: "y"}, param{name: "z"})
		if err != nil {
			return zygo.SexpNull, err
		}
		return steps(oplog.Translate{X: v[0], Y: v[1], Z: v[2]}), nil
	})

	// (rotate :z 90), Euler degrees applied X then Y then Z
	add("rotate", func(pa kwArgs) (zygo.Sexp, error) {
		v, err := numbers("rotate", pa, param{name: "x"}, param{name: "y"}, param{name: "z"})
		if err != nil {
			return zygo.SexpNull, err
		}
		return steps(oplog.Rotate{X: v[0], Y: v[1], Z: v[2]}), nil
	})

	// (union other) appends a boolean step; (union base other) returns
	// base's steps followed by the boolean.
	for _, op := range []string{"union", "subtract", "intersect"} {
		add(op, func(pa kwArgs) (zygo.Sexp, error) {
			if len(pa.kw) > 0 {
				return zygo.SexpNull, fmt.Errorf("%s takes no keywords", op)
			}
			var base oplog.Log
			args := pa.positional
			switch len(args) {
			case 1:
			case 2:
				l, err := toSteps(args[0])
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("%s: base: %w", op, err)
				}
				base, args = l, args[1:]
			default:
				return zygo.SexpNull, fmt.Errorf("%s requires 1 or 2 arguments, got %d", op, len(args))
			}
			other, err := toOperand(args[0])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", op, err)
			}
			return &sexpSteps{log: concat(base, oplog.Log{oplog.Boolean{Operation: op, Other: other}})}, nil
		})
	}

	// (ref "geometry-id")
	add("ref", func(pa kwArgs) (zygo.Sexp, error) {
		if len(pa.positional) != 1 || len(pa.kw) > 0 {
			return zygo.SexpNull, fmt.Errorf("ref requires exactly one geometry id")
		}
		id, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("ref: %w", err)
		}
		if id == "" {
			return zygo.SexpNull, fmt.Errorf("ref: empty geometry id")
		}
		return &sexpRef{id: id}, nil
	})

	// (model "bracket" (box 100 50 30) (fillet-edges 5) ...), optionally
	// with :material "steel"
	add("model", func(pa kwArgs) (zygo.Sexp, error) {
		var material *kernel.Material
		for k, v := range pa.kw {
			if k != "material" {
				return zygo.SexpNull, fmt.Errorf("model: unknown keyword :%s", k)
			}
			preset, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("model: material: %w", err)
			}
			mat, ok := kernel.MaterialPreset(preset)
			if !ok {
				return zygo.SexpNull, fmt.Errorf("model: unknown material %q, want one of %s",
					preset, strings.Join(kernel.MaterialPresetNames(), ", "))
			}
			material = &mat
		}
		args := pa.positional
		name := fmt.Sprintf("model-%d", len(s.models)+1)
		if len(args) > 0 {
			if n, err := toString(args[0]); err == nil {
				name, args = n, args[1:]
			}
		}
		if len(args) == 0 {
			return zygo.SexpNull, fmt.Errorf("model %q has no steps", name)
		}
		parts := make([]oplog.Log, 0, len(args))
		for i, a := range args {
			l, err := toSteps(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("model %q: step %d: %w", name, i+1, err)
			}
			parts = append(parts, l)
		}
		m := &sexpModel{name: name, log: concat(parts...), material: material}
		s.models = append(s.models, m)
		return m, nil
	})
}
