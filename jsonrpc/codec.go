// Package jsonrpc encodes and decodes protocol.Message values to and from
// the wire's JSON-RPC 2.0 envelope. It knows nothing about transports or
// sessions; it is purely the serialization boundary, classifying inbound
// messages as requests, responses, errors, or notifications.
package jsonrpc

import (
	"encoding/json"
	"fmt"

	"github.com/lattice-mcp/mcp-sdk-go/protocol"
)

// Decode classifies a parsed message into one of the four protocol.Message
// variants by which top-level fields are present:
//
//	id present, method present                             -> Request
//	id present, method absent, result present, error absent -> Response
//	id present, method absent, error present, result absent -> ErrorResponse
//	id absent, method present                              -> Notification
//
// Any other combination is rejected with a *ParseError.

// Encode renders a protocol.Message as its canonical JSON-RPC 2.0 wire
// form. The result is a total function of msg: every field round-trips
// through Decode unchanged, including unrecognized Extra keys.
func Encode(msg protocol.Message) ([]byte, error) {
	out := map[string]json.RawMessage{}
	jsonrpcRaw, _ := json.Marshal(protocol.Version)
	out["jsonrpc"] = jsonrpcRaw

	switch m := msg.(type) {
	case *protocol.Request:
		if err := encodeID(out, m.ID); err != nil {
			return nil, err
		}
		setRaw(out, "method", m.Method)
		if m.Params != nil {
			out["params"] = m.Params
		}
		mergeMeta(out, m.Meta)
		mergeExtra(out, m.Extra)

	case *protocol.Response:
		if err := encodeID(out, m.ID); err != nil {
			return nil, err
		}
		if m.Result != nil {
			out["result"] = m.Result
		} else {
			out["result"] = json.RawMessage("null")
		}
		mergeMeta(out, m.Meta)
		mergeExtra(out, m.Extra)

	case *protocol.ErrorResponse:
		if err := encodeID(out, m.ID); err != nil {
			return nil, err
		}
		errRaw, err := json.Marshal(&m.Error)
		if err != nil {
			return nil, fmt.Errorf("jsonrpc: encode error object: %w", err)
		}
		out["error"] = errRaw
		mergeMeta(out, m.Meta)
		mergeExtra(out, m.Extra)

	case *protocol.Notification:
		setRaw(out, "method", m.Method)
		if m.Params != nil {
			out["params"] = m.Params
		}
		mergeMeta(out, m.Meta)
		mergeExtra(out, m.Extra)

	default:
		return nil, fmt.Errorf("jsonrpc: unknown message type %T", msg)
	}

	return json.Marshal(out)
}

func encodeID(out map[string]json.RawMessage, id protocol.ID) error {
	raw, err := id.MarshalJSON()
	if err != nil {
		return err
	}
	out["id"] = raw
	return nil
}

func setRaw(out map[string]json.RawMessage, key, value string) {
	raw, _ := json.Marshal(value)
	out[key] = raw
}

func mergeMeta(out map[string]json.RawMessage, meta protocol.Meta) {
	if len(meta) == 0 {
		return
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return
	}
	out["_meta"] = raw
}

func mergeExtra(out map[string]json.RawMessage, extra map[string]json.RawMessage) {
	for k, v := range extra {
		if _, reserved := reservedKeys[k]; reserved {
			continue
		}
		out[k] = v
	}
}

var reservedKeys = map[string]bool{
	"jsonrpc": true, "id": true, "method": true,
	"params": true, "result": true, "error": true, "_meta": true,
}

// Decode parses a single JSON-RPC 2.0 message and classifies it into the
// appropriate protocol.Message variant. It returns a *ParseError when data
// is malformed JSON, has the wrong "jsonrpc" version, or matches none of
// the four shapes.
func Decode(data []byte) (protocol.Message, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ParseError{Detail: err.Error()}
	}

	var version string
	if v, ok := raw["jsonrpc"]; ok {
		if err := json.Unmarshal(v, &version); err != nil {
			return nil, &ParseError{Detail: "jsonrpc field is not a string"}
		}
	}
	if version != protocol.Version {
		return nil, &ParseError{Detail: fmt.Sprintf("unsupported jsonrpc version %q", version)}
	}

	_, hasID := raw["id"]
	_, hasMethod := raw["method"]
	_, hasResult := raw["result"]
	_, hasError := raw["error"]

	meta, extra := splitMeta(raw)

	switch {
	case hasID && hasMethod:
		req := &protocol.Request{Meta: meta, Extra: extra}
		if err := json.Unmarshal(raw["id"], &req.ID); err != nil {
			return nil, &ParseError{Detail: "invalid id: " + err.Error()}
		}
		if err := json.Unmarshal(raw["method"], &req.Method); err != nil {
			return nil, &ParseError{Detail: "invalid method: " + err.Error()}
		}
		if p, ok := raw["params"]; ok {
			req.Params = p
		}
		return req, nil

	case hasID && !hasMethod && hasError && !hasResult:
		errResp := &protocol.ErrorResponse{Meta: meta, Extra: extra}
		if err := json.Unmarshal(raw["id"], &errResp.ID); err != nil {
			return nil, &ParseError{Detail: "invalid id: " + err.Error()}
		}
		if err := json.Unmarshal(raw["error"], &errResp.Error); err != nil {
			return nil, &ParseError{Detail: "invalid error object: " + err.Error()}
		}
		return errResp, nil

	case hasID && !hasMethod && hasResult && !hasError:
		resp := &protocol.Response{Meta: meta, Extra: extra, Result: raw["result"]}
		if err := json.Unmarshal(raw["id"], &resp.ID); err != nil {
			return nil, &ParseError{Detail: "invalid id: " + err.Error()}
		}
		return resp, nil

	case !hasID && hasMethod:
		notif := &protocol.Notification{Meta: meta, Extra: extra}
		if err := json.Unmarshal(raw["method"], &notif.Method); err != nil {
			return nil, &ParseError{Detail: "invalid method: " + err.Error()}
		}
		if p, ok := raw["params"]; ok {
			notif.Params = p
		}
		return notif, nil

	default:
		return nil, &ParseError{Detail: "message matches no known JSON-RPC shape"}
	}
}

func splitMeta(raw map[string]json.RawMessage) (protocol.Meta, map[string]json.RawMessage) {
	var meta protocol.Meta
	if m, ok := raw["_meta"]; ok {
		_ = json.Unmarshal(m, &meta)
	}
	extra := map[string]json.RawMessage{}
	for k, v := range raw {
		if !reservedKeys[k] {
			extra[k] = v
		}
	}
	if len(extra) == 0 {
		extra = nil
	}
	return meta, extra
}

// ParseError is returned by Decode for malformed or unclassifiable input.
// Its RPCError method renders it as the wire-level -32700 Parse error the
// spec requires a server to send back (there being no request id to reply
// to, it is always delivered as an ErrorResponse with a null id).
type ParseError struct{ Detail string }

func (e *ParseError) Error() string { return "jsonrpc: parse error: " + e.Detail }

// RPCError renders e as the standard JSON-RPC -32700 error object.
func (e *ParseError) RPCError() *protocol.RPCError {
	return protocol.ErrParseError(e.Detail)
}
