package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/qutlas/cadmium/pkg/cache"
	"github.com/qutlas/cadmium/pkg/engine"
	"github.com/qutlas/cadmium/pkg/export"
	"github.com/qutlas/cadmium/pkg/kernel"
	"github.com/qutlas/cadmium/pkg/kernel/cadmium"
	"github.com/qutlas/cadmium/pkg/kernel/csg"
	"github.com/qutlas/cadmium/pkg/logging"
	"github.com/qutlas/cadmium/pkg/oplog"
)

// Handler executes requests against a mesh cache. Geometry runs on the
// calling goroutine; the cache is the only state shared between calls.
type Handler struct {
	cache         *cache.Cache
	kernel        *cadmium.Kernel
	replay        kernel.Kernel
	scriptTimeout time.Duration
	logger        *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithKernel sets the mesh kernel used for primitives, booleans and
// features.
func WithKernel(k *cadmium.Kernel) HandlerOption {
	return func(h *Handler) { h.kernel = k }
}

// WithReplayKernel sets the backend for REPLAY_LOG and EVALUATE_SCRIPT.
// It defaults to the mesh kernel.
func WithReplayKernel(k kernel.Kernel) HandlerOption {
	return func(h *Handler) { h.replay = k }
}

// WithScriptTimeout bounds script evaluation, not the replay that follows.
func WithScriptTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) { h.scriptTimeout = d }
}

// WithLogger sets the handler's logger.
func WithLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) { h.logger = logging.OrNop(l) }
}

// NewHandler returns a Handler storing results in c.
func NewHandler(c *cache.Cache, opts ...HandlerOption) *Handler {
	h := &Handler{cache: c, logger: logging.Nop()}
	for _, o := range opts {
		o(h)
	}
	if h.kernel == nil {
		h.kernel = cadmium.New(0)
	}
	if h.replay == nil {
		h.replay = h.kernel
	}
	return h
}

// Cache returns the handler's cache.
func (h *Handler) Cache() *cache.Cache { return h.cache }

type opFunc func(h *Handler, ctx context.Context, raw json.RawMessage) (any, error)

// typed decodes the payload strictly into T before calling f.
func typed[T any](op Operation, f func(*Handler, context.Context, T) (any, error)) opFunc {
	return func(h *Handler, ctx context.Context, raw json.RawMessage) (any, error) {
		p, err := decodePayload[T](op, raw)
		if err != nil {
			return nil, err
		}
		return f(h, ctx, p)
	}
}

var operations = map[Operation]opFunc{
	OpCreateBox:             typed(OpCreateBox, (*Handler).createBox),
	OpCreateCylinder:        typed(OpCreateCylinder, (*Handler).createCylinder),
	OpCreateSphere:          typed(OpCreateSphere, (*Handler).createSphere),
	OpCreateCone:            typed(OpCreateCone, (*Handler).createCone),
	OpCreateTorus:           typed(OpCreateTorus, (*Handler).createTorus),
	OpLoadMesh:              typed(OpLoadMesh, (*Handler).loadMesh),
	OpBooleanUnion:          typed(OpBooleanUnion, boolean(csg.OpUnion)),
	OpBooleanSubtract:       typed(OpBooleanSubtract, boolean(csg.OpSubtract)),
	OpBooleanIntersect:      typed(OpBooleanIntersect, boolean(csg.OpIntersect)),
	OpAddHole:               typed(OpAddHole, (*Handler).addHole),
	OpAddFillet:             typed(OpAddFillet, (*Handler).addFillet),
	OpAddChamfer:            typed(OpAddChamfer, (*Handler).addChamfer),
	OpGetMesh:               typed(OpGetMesh, (*Handler).getMesh),
	OpComputeBoundingBox:    typed(OpComputeBoundingBox, (*Handler).boundingBox),
	OpExportSTL:             typed(OpExportSTL, (*Handler).exportSTL),
	OpExportOBJ:             typed(OpExportOBJ, (*Handler).exportOBJ),
	OpClearCache:            typed(OpClearCache, (*Handler).clearCache),
	OpRemoveGeometry:        typed(OpRemoveGeometry, (*Handler).removeGeometry),
	OpComputeHash:           typed(OpComputeHash, (*Handler).hash),
	OpComputeMassProperties: typed(OpComputeMassProperties, (*Handler).massProperties),
	OpListEdges:             typed(OpListEdges, (*Handler).listEdges),
	OpTransform:             typed(OpTransform, (*Handler).transform),
	OpReplayLog:             typed(OpReplayLog, (*Handler).replayLog),
	OpEvaluateScript:        typed(OpEvaluateScript, (*Handler).evaluateScript),
	OpCacheStats:            typed(OpCacheStats, (*Handler).cacheStats),
	OpSetMaterial:           typed(OpSetMaterial, (*Handler).setMaterial),
}

// Operations returns every supported operation in lexical order.
func Operations() []Operation {
	ops := lo.Keys(operations)
	slices.Sort(ops)
	return ops
}

// Handle executes req. It never panics: a panic inside an operation is
// reported as an INTERNAL_ERROR response and leaves the cache usable.
func (h *Handler) Handle(ctx context.Context, req Request) (resp Response) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("operation panicked", "id", req.ID, "operation", req.Operation, "panic", r)
			resp = ErrorResponse(req.ID, kernel.Errorf(kernel.KindInternal, string(req.Operation), "panic: %v", r))
		}
	}()

	fn, ok := operations[req.Operation]
	if !ok {
		return ErrorResponse(req.ID, kernel.Errorf(kernel.KindProtocol, "", "unknown operation %q", req.Operation))
	}
	if err := ctx.Err(); err != nil {
		return ErrorResponse(req.ID, contextError(string(req.Operation), err))
	}
	result, err := fn(h, ctx, req.Payload)
	if err != nil {
		h.logger.Debug("operation failed", "id", req.ID, "operation", req.Operation,
			"code", kernel.KindOf(err).Code(), "err", err)
		return ErrorResponse(req.ID, err)
	}
	h.logger.Debug("operation done", "id", req.ID, "operation", req.Operation, "elapsed", time.Since(start))
	return Response{ID: req.ID, Type: TypeResult, Result: result}
}

// Ready returns the READY message announcing the handler's capabilities.
func (h *Handler) Ready() Response {
	return Response{Type: TypeReady, Result: ReadyResult{
		Kernel:     kernelName(h.replay),
		Operations: Operations(),
		Materials:  kernel.MaterialPresetNames(),
	}}
}

func kernelName(k kernel.Kernel) string {
	if s, ok := k.(fmt.Stringer); ok {
		return s.String()
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", k), "*")
}

func contextError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return kernel.Errorf(kernel.KindTimeout, op, "%w", err)
	}
	return kernel.Errorf(kernel.KindInternal, op, "%w", err)
}

// store caches m and returns it as a result.
func (h *Handler) store(m *kernel.Mesh) (MeshResult, error) {
	m = m.WithNormals()
	id, err := h.cache.Put(m)
	if err != nil {
		return MeshResult{}, err
	}
	return meshResult(id, m), nil
}

// storeSolid returns a function that meshes a solid, applies the
// material mp describes and caches the result.
func (h *Handler) storeSolid(mp *MaterialPayload) func(kernel.Solid, error) (any, error) {
	return func(s kernel.Solid, err error) (any, error) {
		if err != nil {
			return nil, err
		}
		mat, err := resolveMaterial(mp)
		if err != nil {
			return nil, err
		}
		m, err := h.kernel.ToMesh(s)
		if err != nil {
			return nil, err
		}
		m.Material = mat
		return h.store(m)
	}
}

// resolveMaterial returns nil for a nil payload.
func resolveMaterial(mp *MaterialPayload) (*kernel.Material, error) {
	if mp == nil {
		return nil, nil
	}
	mat, err := mp.Resolve()
	if err != nil {
		return nil, err
	}
	return &mat, nil
}

func meshResult(id string, m *kernel.Mesh) MeshResult {
	return MeshResult{GeometryID: id, Vertices: m.Vertices, Indices: m.Faces, Normals: m.Normals, Name: m.Name, Material: m.Material}
}

// mesh looks up a required geometry ID.
func (h *Handler) mesh(field, id string) (*kernel.Mesh, error) {
	if id == "" {
		return nil, kernel.Errorf(kernel.KindInvalidInput, "", "%s is required", field)
	}
	return h.cache.Resolve(id)
}

func (h *Handler) createBox(_ context.Context, p BoxPayload) (any, error) {
	return h.storeSolid(p.Material)(h.kernel.Box(p.Length, p.Width, p.Height))
}

func (h *Handler) createCylinder(_ context.Context, p CylinderPayload) (any, error) {
	return h.storeSolid(p.Material)(h.kernel.Cylinder(p.Radius, p.Height, p.Segments))
}

func (h *Handler) createSphere(_ context.Context, p SpherePayload) (any, error) {
	return h.storeSolid(p.Material)(h.kernel.Sphere(p.Radius, p.SegmentsLat, p.SegmentsLon))
}

func (h *Handler) createCone(_ context.Context, p ConePayload) (any, error) {
	return h.storeSolid(p.Material)(h.kernel.Cone(p.Radius, p.Height, p.Segments))
}

func (h *Handler) createTorus(_ context.Context, p TorusPayload) (any, error) {
	return h.storeSolid(p.Material)(h.kernel.Torus(p.MajorRadius, p.MinorRadius, p.SegmentsMajor, p.SegmentsMinor))
}

func (h *Handler) loadMesh(_ context.Context, p LoadMeshPayload) (any, error) {
	mat, err := resolveMaterial(p.Material)
	if err != nil {
		return nil, err
	}
	m := &kernel.Mesh{Vertices: p.Vertices, Faces: p.Indices, Normals: p.Normals, Name: p.Name, Material: mat}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if m.IsEmpty() {
		return nil, kernel.Errorf(kernel.KindInvalidInput, "load mesh", "mesh has no triangles")
	}
	return h.store(m)
}

func boolean(op csg.Op) func(*Handler, context.Context, BooleanPayload) (any, error) {
	return func(h *Handler, _ context.Context, p BooleanPayload) (any, error) {
		a, err := h.mesh("geometryIdA", p.GeometryIDA)
		if err != nil {
			return nil, err
		}
		b, err := h.mesh("geometryIdB", p.GeometryIDB)
		if err != nil {
			return nil, err
		}
		out, err := h.kernel.Booleans().Apply(op, a, b)
		if err != nil {
			return nil, err
		}
		return h.store(out)
	}
}

func (h *Handler) addHole(_ context.Context, p HolePayload) (any, error) {
	m, err := h.mesh("geometryId", p.GeometryID)
	if err != nil {
		return nil, err
	}
	out, err := h.kernel.Features().AddHole(m, p.X, p.Y, p.Z, p.Diameter, p.Depth)
	if err != nil {
		return nil, err
	}
	return h.store(out)
}

func (h *Handler) addFillet(_ context.Context, p FilletPayload) (any, error) {
	m, err := h.mesh("geometryId", p.GeometryID)
	if err != nil {
		return nil, err
	}
	out, err := h.kernel.Features().AddFillet(m, p.EdgeIndex, p.Radius)
	if err != nil {
		return nil, err
	}
	return h.store(out)
}

func (h *Handler) addChamfer(_ context.Context, p ChamferPayload) (any, error) {
	m, err := h.mesh("geometryId", p.GeometryID)
	if err != nil {
		return nil, err
	}
	out, err := h.kernel.Features().AddChamfer(m, p.EdgeIndex, p.Distance)
	if err != nil {
		return nil, err
	}
	return h.store(out)
}

func (h *Handler) getMesh(_ context.Context, p GeometryPayload) (any, error) {
	m, err := h.mesh("geometryId", p.GeometryID)
	if err != nil {
		return nil, err
	}
	return meshResult(p.GeometryID, m), nil
}

func (h *Handler) boundingBox(_ context.Context, p GeometryPayload) (any, error) {
	m, err := h.mesh("geometryId", p.GeometryID)
	if err != nil {
		return nil, err
	}
	bb, err := kernel.ComputeBoundingBox(m)
	if err != nil {
		return nil, err
	}
	return BoundingBoxResult{GeometryID: p.GeometryID, Min: bb.Min, Max: bb.Max, Size: bb.Extents(), Center: bb.Center()}, nil
}

// exportName returns the file name to report and the solid name to embed.
func exportName(filename, ext string) (string, string) {
	if filename == "" {
		filename = "model" + ext
	}
	base := filepath.Base(filename)
	return filename, strings.TrimSuffix(base, filepath.Ext(base))
}

func (h *Handler) exportSTL(_ context.Context, p ExportSTLPayload) (any, error) {
	m, err := h.mesh("geometryId", p.GeometryID)
	if err != nil {
		return nil, err
	}
	filename, name := exportName(p.Filename, ".stl")
	f := export.FormatSTL
	if p.Binary {
		f = export.FormatBinarySTL
	}
	data, err := export.Encode(m, f, name)
	if err != nil {
		return nil, err
	}
	res := ExportResult{GeometryID: p.GeometryID, Filename: filename, Format: f.String()}
	if p.Binary {
		res.Data = data
	} else {
		res.Content = string(data)
	}
	return res, nil
}

func (h *Handler) exportOBJ(_ context.Context, p ExportOBJPayload) (any, error) {
	m, err := h.mesh("geometryId", p.GeometryID)
	if err != nil {
		return nil, err
	}
	filename, name := exportName(p.Filename, ".obj")
	data, err := export.Encode(m, export.FormatOBJ, name)
	if err != nil {
		return nil, err
	}
	return ExportResult{GeometryID: p.GeometryID, Filename: filename, Format: export.FormatOBJ.String(), Content: string(data)}, nil
}

func (h *Handler) clearCache(_ context.Context, _ emptyPayload) (any, error) {
	n := h.cache.Clear()
	h.logger.Info("cache cleared", "entries", n)
	return ClearResult{Cleared: n}, nil
}

func (h *Handler) removeGeometry(_ context.Context, p GeometryPayload) (any, error) {
	if p.GeometryID == "" {
		return nil, kernel.Errorf(kernel.KindInvalidInput, "", "geometryId is required")
	}
	return RemoveResult{GeometryID: p.GeometryID, Removed: h.cache.Remove(p.GeometryID)}, nil
}

func (h *Handler) hash(_ context.Context, p GeometryPayload) (any, error) {
	m, err := h.mesh("geometryId", p.GeometryID)
	if err != nil {
		return nil, err
	}
	return HashResult{GeometryID: p.GeometryID, Hash: kernel.ComputeHash(m)}, nil
}

func (h *Handler) massProperties(_ context.Context, p GeometryPayload) (any, error) {
	m, err := h.mesh("geometryId", p.GeometryID)
	if err != nil {
		return nil, err
	}
	mp, err := kernel.ComputeMassProperties(m)
	if err != nil {
		return nil, err
	}
	return MassPropertiesResult{GeometryID: p.GeometryID, MassProperties: mp}, nil
}

func (h *Handler) listEdges(_ context.Context, p GeometryPayload) (any, error) {
	m, err := h.mesh("geometryId", p.GeometryID)
	if err != nil {
		return nil, err
	}
	return EdgesResult{GeometryID: p.GeometryID, Edges: kernel.DescribeEdges(m)}, nil
}

func finite3(name string, v *[3]float64) error {
	if v == nil {
		return nil
	}
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return kernel.Errorf(kernel.KindInvalidInput, "transform", "%s must be finite, got %v", name, *v)
		}
	}
	return nil
}

func (h *Handler) transform(_ context.Context, p TransformPayload) (any, error) {
	m, err := h.mesh("geometryId", p.GeometryID)
	if err != nil {
		return nil, err
	}
	if p.Translate == nil && p.Rotate == nil {
		return nil, kernel.Errorf(kernel.KindInvalidInput, "transform", "translate or rotate is required")
	}
	if err := finite3("rotate", p.Rotate); err != nil {
		return nil, err
	}
	if err := finite3("translate", p.Translate); err != nil {
		return nil, err
	}
	if r := p.Rotate; r != nil {
		m = kernel.Rotate(m, r[0], r[1], r[2])
	}
	if t := p.Translate; t != nil {
		m = kernel.Translate(m, t[0], t[1], t[2])
	}
	return h.store(m)
}

func (h *Handler) interpreter() *oplog.Interpreter {
	return oplog.New(h.replay, h.cache)
}

func (h *Handler) replayLog(ctx context.Context, p ReplayLogPayload) (any, error) {
	in := h.interpreter()
	findings := in.Validate(p.Entries)
	for _, f := range findings.Warnings() {
		h.logger.Debug("log warning", "path", f.Path, "message", f.Message)
	}
	if err := findings.Err(); err != nil {
		return nil, err
	}
	m, err := in.Replay(ctx, p.Entries)
	if err != nil {
		return nil, err
	}
	return h.store(m)
}

func (h *Handler) evaluateScript(ctx context.Context, p ScriptPayload) (any, error) {
	// A fresh engine per request: concurrent scripts must not supersede
	// each other.
	eng := engine.NewEngine()
	eng.Timeout = h.scriptTimeout
	models, evalErrs, err := eng.Evaluate(p.Source)
	if err != nil {
		return nil, err
	}
	if len(evalErrs) > 0 {
		msgs := lo.Map(evalErrs, func(e engine.EvalError, _ int) string { return e.Error() })
		return nil, kernel.Errorf(kernel.KindInvalidInput, "evaluate script", "%s", strings.Join(msgs, "; "))
	}
	if len(models) == 0 {
		return nil, kernel.Errorf(kernel.KindInvalidInput, "evaluate script", "script produced no model")
	}
	res := ScriptResult{Models: make([]MeshResult, 0, len(models))}
	in := h.interpreter()
	for _, model := range models {
		m, err := in.Replay(ctx, model.Log)
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", model.Name, err)
		}
		m = m.Clone()
		m.Name = model.Name
		if model.Material != nil {
			m.Material = model.Material
		}
		mr, err := h.store(m)
		if err != nil {
			return nil, err
		}
		res.Models = append(res.Models, mr)
	}
	return res, nil
}

// setMaterial caches a copy of a mesh with a new material under a new ID.
// The geometry and therefore the content hash are unchanged.
func (h *Handler) setMaterial(_ context.Context, p SetMaterialPayload) (any, error) {
	m, err := h.mesh("geometryId", p.GeometryID)
	if err != nil {
		return nil, err
	}
	mat, err := p.Material.Resolve()
	if err != nil {
		return nil, err
	}
	out := m.Clone()
	out.Material = &mat
	return h.store(out)
}

func (h *Handler) cacheStats(_ context.Context, _ emptyPayload) (any, error) {
	return h.cache.Stats(), nil
}
