package worker

import (
	"bytes"
	"encoding/json"

	"github.com/tinylib/msgp/msgp"

	"github.com/qutlas/cadmium/pkg/kernel"
)

// The msgpack encoding mirrors the JSON one: a request is a map with keys
// id, operation and payload; a response is a map with keys id, type,
// result, error and code. Payloads and results travel as msgpack maps and
// are converted to and from JSON at the boundary, so handlers only ever
// see JSON.

const msgpackOp = "msgpack"

// EncodeRequestMsgpack appends req to b.
func EncodeRequestMsgpack(b []byte, req Request) ([]byte, error) {
	payload, err := jsonToValue(req.Payload)
	if err != nil {
		return b, err
	}
	b = msgp.AppendMapHeader(b, 3)
	b = msgp.AppendString(b, "id")
	b = msgp.AppendString(b, req.ID)
	b = msgp.AppendString(b, "operation")
	b = msgp.AppendString(b, string(req.Operation))
	b = msgp.AppendString(b, "payload")
	return appendValue(b, payload)
}

// DecodeRequestMsgpack decodes one request from b and returns the
// remaining bytes.
func DecodeRequestMsgpack(b []byte) (Request, []byte, error) {
	var req Request
	n, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return req, b, protocolError("read request: %w", err)
	}
	for i := uint32(0); i < n; i++ {
		var key string
		key, b, err = msgp.ReadStringBytes(b)
		if err != nil {
			return req, b, protocolError("read request key: %w", err)
		}
		switch key {
		case "id":
			req.ID, b, err = msgp.ReadStringBytes(b)
		case "operation":
			var op string
			op, b, err = msgp.ReadStringBytes(b)
			req.Operation = Operation(op)
		case "payload":
			req.Payload, b, err = readJSON(b)
		default:
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return req, b, protocolError("read request %s: %w", key, err)
		}
	}
	return req, b, nil
}

// EncodeResponseMsgpack appends resp to b.
func EncodeResponseMsgpack(b []byte, resp Response) ([]byte, error) {
	var result any
	if resp.Result != nil {
		raw, err := json.Marshal(resp.Result)
		if err != nil {
			return b, protocolError("encode result: %w", err)
		}
		if result, err = jsonToValue(raw); err != nil {
			return b, err
		}
	}
	b = msgp.AppendMapHeader(b, 5)
	b = msgp.AppendString(b, "id")
	b = msgp.AppendString(b, resp.ID)
	b = msgp.AppendString(b, "type")
	b = msgp.AppendString(b, string(resp.Type))
	b = msgp.AppendString(b, "result")
	b, err := appendValue(b, result)
	if err != nil {
		return b, err
	}
	b = msgp.AppendString(b, "error")
	b = msgp.AppendString(b, resp.Error)
	b = msgp.AppendString(b, "code")
	b = msgp.AppendString(b, resp.Code)
	return b, nil
}

// DecodeResponseMsgpack decodes one response from b. Result, when present,
// is returned as a json.RawMessage.
func DecodeResponseMsgpack(b []byte) (Response, []byte, error) {
	var resp Response
	n, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return resp, b, protocolError("read response: %w", err)
	}
	for i := uint32(0); i < n; i++ {
		var key string
		key, b, err = msgp.ReadStringBytes(b)
		if err != nil {
			return resp, b, protocolError("read response key: %w", err)
		}
		switch key {
		case "id":
			resp.ID, b, err = msgp.ReadStringBytes(b)
		case "type":
			var t string
			t, b, err = msgp.ReadStringBytes(b)
			resp.Type = MessageType(t)
		case "result":
			var raw json.RawMessage
			raw, b, err = readJSON(b)
			if raw != nil {
				resp.Result = raw
			}
		case "error":
			resp.Error, b, err = msgp.ReadStringBytes(b)
		case "code":
			resp.Code, b, err = msgp.ReadStringBytes(b)
		default:
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return resp, b, protocolError("read response %s: %w", key, err)
		}
	}
	return resp, b, nil
}

func protocolError(format string, args ...any) error {
	return kernel.Errorf(kernel.KindProtocol, msgpackOp, format, args...)
}

// jsonToValue decodes raw into plain Go values. Integral numbers become
// int64 so they keep their msgpack integer encoding.
func jsonToValue(raw json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, protocolError("decode json: %w", err)
	}
	return numbersToValues(v), nil
}

func numbersToValues(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, e := range t {
			t[k] = numbersToValues(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = numbersToValues(e)
		}
		return t
	default:
		return v
	}
}

func appendValue(b []byte, v any) ([]byte, error) {
	if v == nil {
		return msgp.AppendNil(b), nil
	}
	out, err := msgp.AppendIntf(b, v)
	if err != nil {
		return b, protocolError("encode value: %w", err)
	}
	return out, nil
}

// readJSON reads one msgpack value and re-encodes it as JSON. A msgpack nil
// yields a nil message.
func readJSON(b []byte) (json.RawMessage, []byte, error) {
	if msgp.IsNil(b) {
		rest, err := msgp.ReadNilBytes(b)
		return nil, rest, err
	}
	v, rest, err := msgp.ReadIntfBytes(b)
	if err != nil {
		return nil, rest, err
	}
	raw, err := json.Marshal(jsonSafe(v))
	if err != nil {
		return nil, rest, err
	}
	return raw, rest, nil
}

// jsonSafe rewrites msgpack-only shapes (maps with non-string keys) into
// values encoding/json accepts.
func jsonSafe(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = jsonSafe(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = jsonSafe(e)
		}
		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			if s, ok := k.(string); ok {
				m[s] = jsonSafe(e)
			}
		}
		return m
	default:
		return v
	}
}
