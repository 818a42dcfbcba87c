package oplog

import (
	"context"
	"errors"
	"fmt"

	"github.com/qutlas/cadmium/pkg/kernel"
	"github.com/qutlas/cadmium/pkg/kernel/csg"
)

// ErrNoCurrentMesh is wrapped by the error returned when an entry that
// modifies the current mesh runs before any creation entry.
var ErrNoCurrentMesh = errors.New("no current mesh")

// DefaultMaxDepth limits how deeply boolean operands may nest logs.
const DefaultMaxDepth = 16

// Resolver looks up meshes by geometry ID.
type Resolver interface {
	Resolve(id string) (*kernel.Mesh, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(id string) (*kernel.Mesh, error)

func (f ResolverFunc) Resolve(id string) (*kernel.Mesh, error) { return f(id) }

// Interpreter replays logs against a kernel.
type Interpreter struct {
	Kernel kernel.Kernel
	// Resolver serves geometryId operands. Nil rejects them.
	Resolver Resolver
	// MaxDepth bounds nested operand logs. Zero means DefaultMaxDepth.
	MaxDepth int
}

// New returns an Interpreter for k resolving references through r.
func New(k kernel.Kernel, r Resolver) *Interpreter {
	return &Interpreter{Kernel: k, Resolver: r}
}

// Replay applies the entries of l in order and returns the final mesh.
// Creation entries replace the current mesh; every other entry needs one.
// Replay stops at the first failing entry. ctx is checked between entries;
// a single entry always runs to completion.
func (in *Interpreter) Replay(ctx context.Context, l Log) (*kernel.Mesh, error) {
	s, err := in.replay(ctx, l, 0)
	if err != nil {
		return nil, err
	}
	return in.Kernel.ToMesh(s)
}

func (in *Interpreter) maxDepth() int {
	if in.MaxDepth > 0 {
		return in.MaxDepth
	}
	return DefaultMaxDepth
}

func (in *Interpreter) replay(ctx context.Context, l Log, depth int) (kernel.Solid, error) {
	if len(l) == 0 {
		return nil, kernel.Errorf(kernel.KindInvalidInput, "replay", "empty operation log")
	}
	var cur kernel.Solid
	for i, e := range l {
		if err := ctx.Err(); err != nil {
			return nil, contextError(err)
		}
		if e == nil {
			return nil, kernel.Errorf(kernel.KindInvalidInput, "replay", "entry %d is nil", i)
		}
		next, err := in.apply(ctx, cur, e, depth)
		if err != nil {
			return nil, fmt.Errorf("entry %d (%s): %w", i, e.Kind(), err)
		}
		cur = next
	}
	return cur, nil
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return kernel.Errorf(kernel.KindTimeout, "replay", "%w", err)
	}
	return kernel.Errorf(kernel.KindInternal, "replay", "%w", err)
}

func (in *Interpreter) apply(ctx context.Context, cur kernel.Solid, e Entry, depth int) (kernel.Solid, error) {
	k := in.Kernel
	switch e := e.(type) {
	case CreateBox:
		return k.Box(e.Length, e.Width, e.Height)
	case CreateCylinder:
		return k.Cylinder(e.Radius, e.Height, e.Segments)
	case CreateSphere:
		return k.Sphere(e.Radius, e.SegmentsLat, e.SegmentsLon)
	case CreateCone:
		return k.Cone(e.Radius, e.Height, e.Segments)
	case CreateTorus:
		return k.Torus(e.MajorRadius, e.MinorRadius, e.SegmentsMajor, e.SegmentsMinor)
	}

	if cur == nil {
		return nil, kernel.Errorf(kernel.KindInvalidInput, string(e.Kind()), "%w", ErrNoCurrentMesh)
	}
	switch e := e.(type) {
	case FilletEdges:
		b, err := in.blender()
		if err != nil {
			return nil, err
		}
		return b.FilletEdges(cur, e.Radius)
	case ChamferEdges:
		b, err := in.blender()
		if err != nil {
			return nil, err
		}
		return b.ChamferEdges(cur, e.Distance)
	case Translate:
		return k.Translate(cur, e.X, e.Y, e.Z), nil
	case Rotate:
		return k.Rotate(cur, e.X, e.Y, e.Z), nil
	case Boolean:
		op, err := csg.ParseOp(e.Operation)
		if err != nil {
			return nil, err
		}
		other, err := in.operand(ctx, e.Other, depth)
		if err != nil {
			return nil, fmt.Errorf("operand: %w", err)
		}
		switch op {
		case csg.OpUnion:
			return k.Union(cur, other)
		case csg.OpSubtract:
			return k.Difference(cur, other)
		default:
			return k.Intersection(cur, other)
		}
	}
	return nil, kernel.Errorf(kernel.KindInvalidInput, "replay", "unsupported entry %T", e)
}

func (in *Interpreter) blender() (kernel.EdgeBlender, error) {
	b, ok := in.Kernel.(kernel.EdgeBlender)
	if !ok {
		return nil, kernel.Errorf(kernel.KindInvalidInput, "replay", "kernel %T does not support edge blending", in.Kernel)
	}
	return b, nil
}

func (in *Interpreter) importMesh(m *kernel.Mesh) (kernel.Solid, error) {
	mi, ok := in.Kernel.(kernel.MeshImporter)
	if !ok {
		return nil, kernel.Errorf(kernel.KindInvalidInput, "replay", "kernel %T does not support mesh import", in.Kernel)
	}
	return mi.FromMesh(m)
}

// operand resolves a boolean's second operand before the boolean runs.
func (in *Interpreter) operand(ctx context.Context, o Operand, depth int) (kernel.Solid, error) {
	if n := o.sources(); n != 1 {
		return nil, kernel.Errorf(kernel.KindInvalidInput, "replay",
			"boolean operand must have exactly one of mesh, geometryId or log, got %d", n)
	}
	switch {
	case o.Mesh != nil:
		return in.importMesh(o.Mesh)
	case o.GeometryID != "":
		if in.Resolver == nil {
			return nil, kernel.Errorf(kernel.KindInvalidInput, "replay", "cannot resolve geometry %q: no resolver", o.GeometryID)
		}
		m, err := in.Resolver.Resolve(o.GeometryID)
		if err != nil {
			return nil, err
		}
		return in.importMesh(m)
	default:
		if depth+1 > in.maxDepth() {
			return nil, kernel.Errorf(kernel.KindInvalidInput, "replay", "operand logs nested deeper than %d", in.maxDepth())
		}
		return in.replay(ctx, o.Log, depth+1)
	}
}
