// Package worker is the request/response boundary around the geometry
// kernel. A Handler executes one Request synchronously against a mesh
// cache; a Host runs requests concurrently with a deadline each.
package worker

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/qutlas/cadmium/pkg/kernel"
	"github.com/qutlas/cadmium/pkg/oplog"
)

// Operation names a worker request.
type Operation string

const (
	OpCreateBox             Operation = "CREATE_BOX"
	OpCreateCylinder        Operation = "CREATE_CYLINDER"
	OpCreateSphere          Operation = "CREATE_SPHERE"
	OpCreateCone            Operation = "CREATE_CONE"
	OpCreateTorus           Operation = "CREATE_TORUS"
	OpLoadMesh              Operation = "LOAD_MESH"
	OpBooleanUnion          Operation = "BOOLEAN_UNION"
	OpBooleanSubtract       Operation = "BOOLEAN_SUBTRACT"
	OpBooleanIntersect      Operation = "BOOLEAN_INTERSECT"
	OpAddHole               Operation = "ADD_HOLE"
	OpAddFillet             Operation = "ADD_FILLET"
	OpAddChamfer            Operation = "ADD_CHAMFER"
	OpGetMesh               Operation = "GET_MESH"
	OpComputeBoundingBox    Operation = "COMPUTE_BOUNDING_BOX"
	OpExportSTL             Operation = "EXPORT_STL"
	OpExportOBJ             Operation = "EXPORT_OBJ"
	OpClearCache            Operation = "CLEAR_CACHE"
	OpRemoveGeometry        Operation = "REMOVE_GEOMETRY"
	OpComputeHash           Operation = "COMPUTE_HASH"
	OpComputeMassProperties Operation = "COMPUTE_MASS_PROPERTIES"
	OpListEdges             Operation = "LIST_EDGES"
	OpTransform             Operation = "TRANSFORM"
	OpReplayLog             Operation = "REPLAY_LOG"
	OpEvaluateScript        Operation = "EVALUATE_SCRIPT"
	OpCacheStats            Operation = "CACHE_STATS"
	OpSetMaterial           Operation = "SET_MATERIAL"
)

// MessageType tags a Response.
type MessageType string

const (
	TypeResult MessageType = "RESULT"
	TypeError  MessageType = "ERROR"
	TypeReady  MessageType = "READY"
)

// Request is one call into the worker. Payload holds the operation's
// parameters as a JSON object.
type Request struct {
	ID        string          `json:"id"`
	Operation Operation       `json:"operation"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Response answers the Request with the same ID. Result is set for
// RESULT and READY messages; Error and Code for ERROR messages.
type Response struct {
	ID     string      `json:"id"`
	Type   MessageType `json:"type"`
	Result any         `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
	Code   string      `json:"code,omitempty"`
}

// NewRequest builds a Request with payload encoded as JSON.
func NewRequest(id string, op Operation, payload any) (Request, error) {
	req := Request{ID: id, Operation: op}
	if payload == nil {
		return req, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Request{}, kernel.Errorf(kernel.KindProtocol, string(op), "encode payload: %w", err)
	}
	req.Payload = b
	return req, nil
}

// ErrorResponse converts err to an ERROR message carrying its kind's code.
func ErrorResponse(id string, err error) Response {
	return Response{ID: id, Type: TypeError, Error: err.Error(), Code: kernel.KindOf(err).Code()}
}

// decodePayload decodes raw strictly into T. An empty payload decodes as
// an empty object.
func decodePayload[T any](op Operation, raw json.RawMessage) (T, error) {
	var p T
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return p, kernel.Errorf(kernel.KindProtocol, string(op), "decode payload: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return p, kernel.Errorf(kernel.KindProtocol, string(op), "decode payload: trailing data")
	}
	return p, nil
}

type (
	BoxPayload struct {
		Length   float64          `json:"length"`
		Width    float64          `json:"width"`
		Height   float64          `json:"height"`
		Material *MaterialPayload `json:"material,omitempty"`
	}
	CylinderPayload struct {
		Radius   float64          `json:"radius"`
		Height   float64          `json:"height"`
		Segments int              `json:"segments,omitempty"`
		Material *MaterialPayload `json:"material,omitempty"`
	}
	SpherePayload struct {
		Radius      float64          `json:"radius"`
		SegmentsLat int              `json:"segmentsLat,omitempty"`
		SegmentsLon int              `json:"segmentsLon,omitempty"`
		Material    *MaterialPayload `json:"material,omitempty"`
	}
	ConePayload struct {
		Radius   float64          `json:"radius"`
		Height   float64          `json:"height"`
		Segments int              `json:"segments,omitempty"`
		Material *MaterialPayload `json:"material,omitempty"`
	}
	TorusPayload struct {
		MajorRadius   float64          `json:"majorRadius"`
		MinorRadius   float64          `json:"minorRadius"`
		SegmentsMajor int              `json:"segmentsMajor,omitempty"`
		SegmentsMinor int              `json:"segmentsMinor,omitempty"`
		Material      *MaterialPayload `json:"material,omitempty"`
	}
	LoadMeshPayload struct {
		Vertices []float64        `json:"vertices"`
		Indices  []uint32         `json:"indices"`
		Normals  []float64        `json:"normals,omitempty"`
		Name     string           `json:"name,omitempty"`
		Material *MaterialPayload `json:"material,omitempty"`
	}
	BooleanPayload struct {
		GeometryIDA string `json:"geometryIdA"`
		GeometryIDB string `json:"geometryIdB"`
	}
	HolePayload struct {
		GeometryID string  `json:"geometryId"`
		X          float64 `json:"x"`
		Y          float64 `json:"y"`
		Z          float64 `json:"z"`
		Diameter   float64 `json:"diameter"`
		Depth      float64 `json:"depth"`
	}
	FilletPayload struct {
		GeometryID string  `json:"geometryId"`
		EdgeIndex  int     `json:"edgeIndex"`
		Radius     float64 `json:"radius"`
	}
	ChamferPayload struct {
		GeometryID string  `json:"geometryId"`
		EdgeIndex  int     `json:"edgeIndex"`
		Distance   float64 `json:"distance"`
	}
	// GeometryPayload addresses one cached mesh.
	GeometryPayload struct {
		GeometryID string `json:"geometryId"`
	}
	ExportSTLPayload struct {
		GeometryID string `json:"geometryId"`
		Filename   string `json:"filename,omitempty"`
		Binary     bool   `json:"binary,omitempty"`
	}
	ExportOBJPayload struct {
		GeometryID string `json:"geometryId"`
		Filename   string `json:"filename,omitempty"`
	}
	// TransformPayload rotates (Euler degrees, X then Y then Z) and then
	// translates a cached mesh.
	TransformPayload struct {
		GeometryID string      `json:"geometryId"`
		Translate  *[3]float64 `json:"translate,omitempty"`
		Rotate     *[3]float64 `json:"rotate,omitempty"`
	}
	ReplayLogPayload struct {
		Entries oplog.Log `json:"entries"`
	}
	ScriptPayload struct {
		Source string `json:"source"`
	}
	// MaterialPayload selects display material. Preset names a shop
	// material; the other fields override it or, without a preset, the
	// neutral default. Scalars are clamped to [0,1].
	MaterialPayload struct {
		Preset    string      `json:"preset,omitempty"`
		Name      string      `json:"name,omitempty"`
		Color     *[3]float64 `json:"color,omitempty"`
		Metallic  *float64    `json:"metallic,omitempty"`
		Roughness *float64    `json:"roughness,omitempty"`
		Opacity   *float64    `json:"opacity,omitempty"`
	}
	SetMaterialPayload struct {
		GeometryID string          `json:"geometryId"`
		Material   MaterialPayload `json:"material"`
	}
	emptyPayload struct{}
)

type (
	// MeshResult is returned by every operation that produces a mesh.
	MeshResult struct {
		GeometryID string           `json:"geometryId"`
		Vertices   []float64        `json:"vertices"`
		Indices    []uint32         `json:"indices"`
		Normals    []float64        `json:"normals"`
		Name       string           `json:"name,omitempty"`
		Material   *kernel.Material `json:"material,omitempty"`
	}
	BoundingBoxResult struct {
		GeometryID string     `json:"geometryId"`
		Min        [3]float64 `json:"min"`
		Max        [3]float64 `json:"max"`
		Size       [3]float64 `json:"size"`
		Center     [3]float64 `json:"center"`
	}
	// ExportResult carries text formats in Content and binary STL in Data.
	ExportResult struct {
		GeometryID string `json:"geometryId"`
		Filename   string `json:"filename"`
		Format     string `json:"format"`
		Content    string `json:"content,omitempty"`
		Data       []byte `json:"data,omitempty"`
	}
	HashResult struct {
		GeometryID string `json:"geometryId"`
		Hash       string `json:"hash"`
	}
	MassPropertiesResult struct {
		GeometryID string `json:"geometryId"`
		kernel.MassProperties
	}
	EdgesResult struct {
		GeometryID string            `json:"geometryId"`
		Edges      []kernel.EdgeInfo `json:"edges"`
	}
	RemoveResult struct {
		GeometryID string `json:"geometryId"`
		Removed    bool   `json:"removed"`
	}
	ClearResult struct {
		Cleared int `json:"cleared"`
	}
	ReadyResult struct {
		Kernel     string      `json:"kernel"`
		Operations []Operation `json:"operations"`
		Materials  []string    `json:"materials"`
	}
)

// defaultMaterial is the base for a MaterialPayload without a preset.
var defaultMaterial = kernel.NewMaterial("Default", 0.8, 0.8, 0.8, 0, 0.5, 1)

// Resolve builds the material p describes.
func (p MaterialPayload) Resolve() (kernel.Material, error) {
	mat := defaultMaterial
	if p.Preset != "" {
		var ok bool
		if mat, ok = kernel.MaterialPreset(p.Preset); !ok {
			return kernel.Material{}, kernel.Errorf(kernel.KindInvalidInput, "material",
				"unknown preset %q, want one of %s", p.Preset, strings.Join(kernel.MaterialPresetNames(), ", "))
		}
	} else if p.Name == "" {
		mat.Name = "Custom"
	}
	if p.Name != "" {
		mat.Name = p.Name
	}
	if p.Color != nil {
		mat.Color = *p.Color
	}
	if p.Metallic != nil {
		mat.Metallic = *p.Metallic
	}
	if p.Roughness != nil {
		mat.Roughness = *p.Roughness
	}
	if p.Opacity != nil {
		mat.Opacity = *p.Opacity
	}
	return kernel.NewMaterial(mat.Name, mat.Color[0], mat.Color[1], mat.Color[2], mat.Metallic, mat.Roughness, mat.Opacity), nil
}

// ScriptResult lists one cached mesh per model, named after the model.
type ScriptResult struct {
	Models []MeshResult `json:"models"`
}
