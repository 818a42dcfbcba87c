// Package oplog defines the operation log: an ordered list of typed
// geometry operations whose replay reconstructs a mesh.
//
// On the wire each entry is a JSON object tagged by "type":
//
//	[
//	  {"type": "create-box", "length": 100, "width": 50, "height": 30},
//	  {"type": "fillet-edges", "radius": 5},
//	  {"type": "boolean", "operation": "union",
//	   "other": {"log": [{"type": "create-box", "length": 20, "width": 20, "height": 20}]}}
//	]
//
// Decoding is strict: unknown types and unknown fields are rejected.
package oplog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/qutlas/cadmium/pkg/kernel"
)

// Kind is the "type" tag of an entry.
type Kind string

const (
	KindCreateBox      Kind = "create-box"
	KindCreateCylinder Kind = "create-cylinder"
	KindCreateSphere   Kind = "create-sphere"
	KindCreateCone     Kind = "create-cone"
	KindCreateTorus    Kind = "create-torus"
	KindFilletEdges    Kind = "fillet-edges"
	KindChamferEdges   Kind = "chamfer-edges"
	KindTranslate      Kind = "translate"
	KindRotate         Kind = "rotate"
	KindBoolean        Kind = "boolean"
)

// Entry is one operation of a log.
type Entry interface {
	Kind() Kind
}

// Log is an ordered list of entries.
type Log []Entry

type CreateBox struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type CreateCylinder struct {
	Radius   float64 `json:"radius"`
	Height   float64 `json:"height"`
	Segments int     `json:"segments,omitempty"`
}

type CreateSphere struct {
	Radius      float64 `json:"radius"`
	SegmentsLat int     `json:"segmentsLat,omitempty"`
	SegmentsLon int     `json:"segmentsLon,omitempty"`
}

type CreateCone struct {
	Radius   float64 `json:"radius"`
	Height   float64 `json:"height"`
	Segments int     `json:"segments,omitempty"`
}

type CreateTorus struct {
	MajorRadius   float64 `json:"majorRadius"`
	MinorRadius   float64 `json:"minorRadius"`
	SegmentsMajor int     `json:"segmentsMajor,omitempty"`
	SegmentsMinor int     `json:"segmentsMinor,omitempty"`
}

// FilletEdges rounds every sharp edge of the current mesh.
type FilletEdges struct {
	Radius float64 `json:"radius"`
}

// ChamferEdges bevels every sharp edge of the current mesh.
type ChamferEdges struct {
	Distance float64 `json:"distance"`
}

type Translate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Rotate holds Euler angles in degrees, applied X then Y then Z.
type Rotate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Boolean combines the current mesh with Other. Operation is "union",
// "subtract" or "intersect"; the current mesh is the first operand.
type Boolean struct {
	Operation string  `json:"operation"`
	Other     Operand `json:"other"`
}

// Operand is the second operand of a boolean. Exactly one field is set.
type Operand struct {
	Mesh       *kernel.Mesh `json:"mesh,omitempty"`
	GeometryID string       `json:"geometryId,omitempty"`
	Log        Log          `json:"log,omitempty"`
}

func (CreateBox) Kind() Kind      { return KindCreateBox }
func (CreateCylinder) Kind() Kind { return KindCreateCylinder }
func (CreateSphere) Kind() Kind   { return KindCreateSphere }
func (CreateCone) Kind() Kind     { return KindCreateCone }
func (CreateTorus) Kind() Kind    { return KindCreateTorus }
func (FilletEdges) Kind() Kind    { return KindFilletEdges }
func (ChamferEdges) Kind() Kind   { return KindChamferEdges }
func (Translate) Kind() Kind      { return KindTranslate }
func (Rotate) Kind() Kind         { return KindRotate }
func (Boolean) Kind() Kind        { return KindBoolean }

// sources counts how many operand fields are set.
func (o Operand) sources() int {
	n := 0
	if o.Mesh != nil {
		n++
	}
	if o.GeometryID != "" {
		n++
	}
	if len(o.Log) > 0 {
		n++
	}
	return n
}

// MeshOperand, RefOperand and LogOperand build boolean operands.
func MeshOperand(m *kernel.Mesh) Operand { return Operand{Mesh: m} }
func RefOperand(id string) Operand       { return Operand{GeometryID: id} }
func LogOperand(l Log) Operand           { return Operand{Log: l} }

// ---------------------------------------------------------------------------
// JSON codec
// ---------------------------------------------------------------------------

var decoders = map[Kind]func([]byte) (Entry, error){
	KindCreateBox:      decodeAs[CreateBox],
	KindCreateCylinder: decodeAs[CreateCylinder],
	KindCreateSphere:   decodeAs[CreateSphere],
	KindCreateCone:     decodeAs[CreateCone],
	KindCreateTorus:    decodeAs[CreateTorus],
	KindFilletEdges:    decodeAs[FilletEdges],
	KindChamferEdges:   decodeAs[ChamferEdges],
	KindTranslate:      decodeAs[Translate],
	KindRotate:         decodeAs[Rotate],
	KindBoolean:        decodeAs[Boolean],
}

// Kinds returns every entry type in sorted order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(decoders))
	for k := range decoders {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func decodeAs[T Entry](data []byte) (Entry, error) {
	var v T
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// UnmarshalEntry decodes one tagged entry.
func UnmarshalEntry(data []byte) (Entry, error) {
	const op = "decode entry"
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, kernel.Errorf(kernel.KindInvalidInput, op, "%w", err)
	}
	rawType, ok := fields["type"]
	if !ok {
		return nil, kernel.Errorf(kernel.KindInvalidInput, op, "missing \"type\"")
	}
	var kind Kind
	if err := json.Unmarshal(rawType, &kind); err != nil {
		return nil, kernel.Errorf(kernel.KindInvalidInput, op, "type: %w", err)
	}
	decode, ok := decoders[kind]
	if !ok {
		return nil, kernel.Errorf(kernel.KindInvalidInput, op, "unknown entry type %q", kind)
	}
	delete(fields, "type")
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, kernel.Errorf(kernel.KindInternal, op, "%w", err)
	}
	e, err := decode(body)
	if err != nil {
		return nil, kernel.Errorf(kernel.KindInvalidInput, op, "%s: %w", kind, err)
	}
	if b, ok := e.(Boolean); ok {
		if n := b.Other.sources(); n != 1 {
			return nil, kernel.Errorf(kernel.KindInvalidInput, op,
				"boolean operand must have exactly one of mesh, geometryId or log, got %d", n)
		}
	}
	return e, nil
}

// MarshalEntry encodes e with its "type" tag.
func MarshalEntry(e Entry) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("marshal entry: nil entry")
	}
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", e.Kind(), err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("marshal %s: %w", e.Kind(), err)
	}
	tag, _ := json.Marshal(e.Kind())
	fields["type"] = tag
	return json.Marshal(fields)
}

// MarshalJSON encodes the log as an array of tagged entries.
func (l Log) MarshalJSON() ([]byte, error) {
	items := make([]json.RawMessage, len(l))
	for i, e := range l {
		b, err := MarshalEntry(e)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		items[i] = b
	}
	return json.Marshal(items)
}

// UnmarshalJSON decodes an array of tagged entries.
func (l *Log) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return kernel.Errorf(kernel.KindInvalidInput, "decode log", "%w", err)
	}
	out := make(Log, len(items))
	for i, raw := range items {
		e, err := UnmarshalEntry(raw)
		if err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		out[i] = e
	}
	*l = out
	return nil
}

// Parse decodes a JSON log.
func Parse(data []byte) (Log, error) {
	var l Log
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, err
	}
	return l, nil
}
