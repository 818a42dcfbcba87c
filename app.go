package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/qutlas/cadmium/pkg/cache"
	"github.com/qutlas/cadmium/pkg/config"
	"github.com/qutlas/cadmium/pkg/engine"
	"github.com/qutlas/cadmium/pkg/export"
	"github.com/qutlas/cadmium/pkg/kernel"
	"github.com/qutlas/cadmium/pkg/kernel/cadmium"
	"github.com/qutlas/cadmium/pkg/kernel/manifold"
	"github.com/qutlas/cadmium/pkg/kernel/sdfx"
	"github.com/qutlas/cadmium/pkg/logging"
	"github.com/qutlas/cadmium/pkg/oplog"
	"github.com/qutlas/cadmium/pkg/server"
	"github.com/qutlas/cadmium/pkg/worker"
)

// colorPalette is a default palette used to assign distinct colors to models.
var colorPalette = []string{
	"#4A90D9", "#E67E22", "#2ECC71", "#9B59B6",
	"#E74C3C", "#1ABC9C", "#F39C12", "#3498DB",
}

// App wires the cache, kernels, worker and script engine from one config.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	cache   *cache.Cache
	kernel  *cadmium.Kernel
	replay  kernel.Kernel
	handler *worker.Handler
	host    *worker.Host
	engine  *engine.Engine
}

// MeshData is the JSON-serializable mesh format sent to a viewer.
type MeshData struct {
	GeometryID string           `json:"geometryId"`
	Vertices   []float32        `json:"vertices"`
	Normals    []float32        `json:"normals"`
	Indices    []uint32         `json:"indices"`
	PartName   string           `json:"partName"`
	Color      string           `json:"color"`
	Material   *kernel.Material `json:"material,omitempty"`
	Hash       string           `json:"hash"`
}

// EvalErrorData is a JSON-serializable eval error for a viewer.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
}

// EvalResult is the full result of evaluating a script.
type EvalResult struct {
	Meshes []MeshData      `json:"meshes"`
	Errors []EvalErrorData `json:"errors"`
}

// NewApp builds an App from a resolved config.
func NewApp(cfg config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = logging.OrNop(logger)

	k := cadmium.New(cfg.Epsilon)
	k.Features().ArcSegments = cfg.ArcSegments
	k.Features().SharpAngle = cfg.SharpAngle

	replay, err := newReplayKernel(cfg, k)
	if err != nil {
		return nil, err
	}

	c := cache.New(cfg.CacheMaxBytes, cfg.CacheTTL.Std(), cache.WithLogger(logger.With("component", "cache")))
	h := worker.NewHandler(c,
		worker.WithKernel(k),
		worker.WithReplayKernel(replay),
		worker.WithScriptTimeout(cfg.ScriptTimeout.Std()),
		worker.WithLogger(logger.With("component", "worker")),
	)
	eng := engine.NewEngine()
	eng.Timeout = cfg.ScriptTimeout.Std()

	return &App{
		cfg:     cfg,
		logger:  logger,
		cache:   c,
		kernel:  k,
		replay:  replay,
		handler: h,
		host:    worker.NewHost(h, cfg.WorkerTimeout.Std(), worker.WithHostLogger(logger.With("component", "host"))),
		engine:  eng,
	}, nil
}

// newReplayKernel picks the backend that replays scripts and logs. The
// mesh kernel always serves the per-operation requests.
func newReplayKernel(cfg config.Config, k *cadmium.Kernel) (kernel.Kernel, error) {
	switch cfg.Backend {
	case config.BackendSdfx:
		return sdfx.New(cfg.SDFCells), nil
	case config.BackendManifold:
		return manifold.New()
	default:
		return k, nil
	}
}

// Evaluate runs source, replays every model it defines and caches the
// results. A newer call supersedes one still evaluating; the superseded
// call reports no meshes and no errors.
func (a *App) Evaluate(source string) EvalResult {
	result := EvalResult{
		Meshes: []MeshData{},
		Errors: []EvalErrorData{},
	}

	models, evalErrs, err := a.engine.Evaluate(source)
	if errors.Is(err, engine.ErrSuperseded) {
		return result
	}
	if err != nil {
		a.logger.Warn("evaluate failed", "err", err)
		result.Errors = append(result.Errors, EvalErrorData{Message: err.Error()})
		return result
	}
	if len(evalErrs) > 0 {
		result.Errors = lo.Map(evalErrs, func(e engine.EvalError, _ int) EvalErrorData {
			return EvalErrorData{Line: e.Line, Col: e.Col, Message: e.Message}
		})
		return result
	}

	in := oplog.New(a.replay, a.cache)
	for i, model := range models {
		m, err := in.Replay(context.Background(), model.Log)
		if err != nil {
			result.Errors = append(result.Errors, EvalErrorData{Message: fmt.Sprintf("model %q: %v", model.Name, err)})
			continue
		}
		m = m.Clone().WithNormals()
		m.Name = model.Name
		color := colorPalette[i%len(colorPalette)]
		if model.Material != nil {
			m.Material = model.Material
			color = hexColor(model.Material.Color)
		}
		id, err := a.cache.Put(m)
		if err != nil {
			result.Errors = append(result.Errors, EvalErrorData{Message: fmt.Sprintf("model %q: %v", model.Name, err)})
			continue
		}
		result.Meshes = append(result.Meshes, MeshData{
			GeometryID: id,
			Vertices:   toFloat32(m.Vertices),
			Normals:    toFloat32(m.Normals),
			Indices:    m.Faces,
			PartName:   model.Name,
			Color:      color,
			Material:   m.Material,
			Hash:       kernel.ComputeHash(m),
		})
	}
	return result
}

// hexColor formats an RGB triple in [0,1] as #RRGGBB.
func hexColor(c [3]float64) string {
	return fmt.Sprintf("#%02X%02X%02X", int(math.Round(c[0]*255)), int(math.Round(c[1]*255)), int(math.Round(c[2]*255)))
}

func toFloat32(v []float64) []float32 {
	return lo.Map(v, func(f float64, _ int) float32 { return float32(f) })
}

// Handle passes one request through the host, as the server does.
func (a *App) Handle(ctx context.Context, req worker.Request) worker.Response {
	return a.host.Do(ctx, req)
}

// Serve runs the HTTP server and the cache sweeper until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	srv := server.New(a.host,
		server.WithCache(a.cache),
		server.WithLogger(a.logger.With("component", "server")),
	)

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go a.cache.Run(sweepCtx, a.cfg.SweepInterval.Std())

	errc := make(chan error, 1)
	go func() { errc <- srv.Start(a.cfg.Listen) }()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	a.host.Wait()
	return <-errc
}

// BuildSummary describes one model written by Build.
type BuildSummary struct {
	Name      string             `json:"name"`
	Path      string             `json:"path"`
	Triangles int                `json:"triangles"`
	Bounds    kernel.BoundingBox `json:"bounds"`
	Hash      string             `json:"hash"`
}

// Build evaluates source and writes each model to path. With several
// models the model name is inserted before the extension.
func (a *App) Build(source, path string, binary bool) ([]BuildSummary, error) {
	format, err := export.FormatFor(path, binary)
	if err != nil {
		return nil, err
	}
	res := a.Evaluate(source)
	if len(res.Errors) > 0 {
		msgs := lo.Map(res.Errors, func(e EvalErrorData, _ int) string {
			if e.Line > 0 {
				return fmt.Sprintf("line %d: %s", e.Line, e.Message)
			}
			return e.Message
		})
		return nil, kernel.Errorf(kernel.KindInvalidInput, "build", "%s", strings.Join(msgs, "; "))
	}
	if len(res.Meshes) == 0 {
		return nil, kernel.Errorf(kernel.KindInvalidInput, "build", "script produced no model")
	}

	out := make([]BuildSummary, 0, len(res.Meshes))
	for _, md := range res.Meshes {
		m, err := a.cache.Resolve(md.GeometryID)
		if err != nil {
			return nil, err
		}
		target := path
		if len(res.Meshes) > 1 {
			target = modelPath(path, md.PartName)
		}
		if err := writeMesh(target, m, format); err != nil {
			return nil, err
		}
		bb, err := kernel.ComputeBoundingBox(m)
		if err != nil {
			return nil, err
		}
		out = append(out, BuildSummary{Name: md.PartName, Path: target, Triangles: m.TriangleCount(), Bounds: bb, Hash: md.Hash})
	}
	return out, nil
}

// modelPath inserts name before the extension of path.
func modelPath(path, name string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-" + strings.Join(strings.Fields(name), "_") + ext
}

func writeMesh(path string, m *kernel.Mesh, f export.Format) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}
	if err := export.Write(file, m, f, m.Name); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// InspectSummary describes a mesh file read by Inspect.
type InspectSummary struct {
	Name        string             `json:"name"`
	GeometryID  string             `json:"geometryId"`
	Vertices    int                `json:"vertices"`
	Triangles   int                `json:"triangles"`
	Bounds      kernel.BoundingBox `json:"bounds"`
	Closed      bool               `json:"closed"`
	Volume      float64            `json:"volume"`
	SurfaceArea float64            `json:"surfaceArea"`
	Hash        string             `json:"hash"`
	Output      string             `json:"output,omitempty"`
}

// Inspect loads the STL or OBJ file at path, welds it with the configured
// epsilon and caches it. With a non-empty output the welded mesh is also
// written there, converting between formats.
func (a *App) Inspect(path, output string, binary bool) (InspectSummary, error) {
	var format export.Format
	if output != "" {
		var err error
		if format, err = export.FormatFor(output, binary); err != nil {
			return InspectSummary{}, err
		}
	}
	m, err := export.LoadFile(path, a.cfg.Epsilon)
	if err != nil {
		return InspectSummary{}, err
	}
	id, err := a.cache.Put(m)
	if err != nil {
		return InspectSummary{}, err
	}
	bb, err := kernel.ComputeBoundingBox(m)
	if err != nil {
		return InspectSummary{}, err
	}
	mp, err := kernel.ComputeMassProperties(m)
	if err != nil {
		return InspectSummary{}, err
	}
	s := InspectSummary{
		Name:        m.Name,
		GeometryID:  id,
		Vertices:    m.VertexCount(),
		Triangles:   m.TriangleCount(),
		Bounds:      bb,
		Closed:      kernel.CheckClosed(m) == nil,
		Volume:      mp.Volume,
		SurfaceArea: mp.SurfaceArea,
		Hash:        kernel.ComputeHash(m),
	}
	if output != "" {
		if err := writeMesh(output, m, format); err != nil {
			return InspectSummary{}, err
		}
		s.Output = output
	}
	a.logger.Debug("inspected mesh", "path", path, "triangles", s.Triangles, "closed", s.Closed)
	return s, nil
}
