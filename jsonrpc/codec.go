package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Version selects the envelope format.
type Version int

const (
	// VersionPre1 carries only method and params; responses are bare values.
	VersionPre1 Version = iota
	// Version1 adds an id and wraps responses in {"id","result","error"}.
	Version1
	// Version2 adds "jsonrpc": "2.0".
	Version2
)

func (v Version) String() string {
	switch v {
	case VersionPre1:
		return "pre1"
	case Version1:
		return "1.0"
	case Version2:
		return "2.0"
	}
	return fmt.Sprintf("Version(%d)", int(v))
}

// ParseVersion parses "pre1", "1.0" or "2.0" (and their short forms).
func ParseVersion(s string) (Version, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pre1", "pre-1.0", "pre1.0", "0":
		return VersionPre1, nil
	case "1", "1.0", "v1":
		return Version1, nil
	case "2", "2.0", "v2":
		return Version2, nil
	}
	return 0, fmt.Errorf("jsonrpc: unknown protocol version %q", s)
}

// ErrUnknownVersion is returned when encoding with an unsupported Version.
var ErrUnknownVersion = errors.New("jsonrpc: unknown protocol version")

const (
	msgCantSerialize = "can't serialize output"
	msgFailure       = "error"
)

// Request is a decoded request envelope.
type Request struct {
	Version Version
	Method  string
	Params  Params
	// ID is the raw request id, mirrored verbatim in the response. Nil for
	// pre-1.0 requests and notifications.
	ID json.RawMessage
	// Notification is set for 2.0 requests without an id. They get no response.
	Notification bool
}

type pre1Request struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

type v1Request struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
	ID     any    `json:"id"`
}

type v2Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      any    `json:"id"`
}

// EncodeRequest encodes a request envelope. id is ignored for VersionPre1.
func EncodeRequest(v Version, method string, params []any, id any) ([]byte, error) {
	if params == nil {
		params = []any{}
	}
	switch v {
	case VersionPre1:
		return json.Marshal(pre1Request{Method: method, Params: params})
	case Version1:
		return json.Marshal(v1Request{Method: method, Params: params, ID: id})
	case Version2:
		return json.Marshal(v2Request{JSONRPC: "2.0", Method: method, Params: params, ID: id})
	}
	return nil, ErrUnknownVersion
}

type v2Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// EncodeNotification encodes a 2.0 request without an id. The server sends
// nothing back.
func EncodeNotification(method string, params []any) ([]byte, error) {
	if params == nil {
		params = []any{}
	}
	return json.Marshal(v2Notification{JSONRPC: "2.0", Method: method, Params: params})
}

// DecodeRequest decodes a request envelope and detects its version.
//
// On a ParseError the returned Request is nil. For other faults the Request
// is returned alongside the fault, so the caller can answer with the
// detected version and id.
func DecodeRequest(data []byte) (*Request, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, ParseError("parse error")
	}
	if raw == nil {
		return nil, ParseError("parse error")
	}

	req := &Request{Version: VersionPre1}
	if tag, ok := raw["jsonrpc"]; ok {
		req.Version = Version2
		var s string
		if err := json.Unmarshal(tag, &s); err != nil || s != "2.0" {
			req.ID = raw["id"]
			return req, InvalidRequest(`"jsonrpc" must be "2.0"`)
		}
	}
	if id, ok := raw["id"]; ok {
		if req.Version == VersionPre1 {
			req.Version = Version1
		}
		req.ID = id
	} else if req.Version == Version2 {
		req.Notification = true
	}

	m, ok := raw["method"]
	if !ok {
		return req, InvalidRequest("method required")
	}
	if err := json.Unmarshal(m, &req.Method); err != nil || req.Method == "" {
		return req, InvalidRequest("method must be a non-empty string")
	}

	req.Params = Params{}
	if p, ok := raw["params"]; ok && !isNull(p) {
		if err := json.Unmarshal(p, &req.Params); err != nil {
			return req, InvalidParams("params must be an array")
		}
	}
	return req, nil
}

type pre1Fault struct {
	Fault       string `json:"fault"`
	FaultCode   int    `json:"faultCode"`
	FaultString string `json:"faultString"`
	FaultData   any    `json:"faultData,omitempty"`
}

type v1Response struct {
	ID     json.RawMessage `json:"id"`
	Result any             `json:"result"`
	Error  *Fault          `json:"error"`
}

type v2Result struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result"`
}

type v2Error struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   *Fault          `json:"error"`
}

// EncodeResponse encodes result (a value, or an error to be sent as a fault)
// in the envelope for v. Results that cannot be serialized are replaced by a
// fault with CodeInternalError.
func EncodeResponse(v Version, id json.RawMessage, result any) ([]byte, error) {
	return encodeResponse(v, id, result, CodeInternalError)
}

// EncodeFault encodes f as a response for v.
func EncodeFault(v Version, id json.RawMessage, f *Fault) ([]byte, error) {
	return encodeResponse(v, id, f, CodeInternalError)
}

func encodeResponse(v Version, id json.RawMessage, result any, failureCode int) ([]byte, error) {
	if err, ok := result.(error); ok {
		result = toFault(err, failureCode)
	}
	b, err := marshalResponse(v, id, result)
	if err == nil {
		return b, nil
	}
	if errors.Is(err, ErrUnknownVersion) {
		return nil, err
	}
	return marshalResponse(v, id, InternalError(failureCode, msgCantSerialize))
}

func marshalResponse(v Version, id json.RawMessage, result any) ([]byte, error) {
	if id != nil && !json.Valid(id) {
		id = nil
	}
	f, isFault := result.(*Fault)
	switch v {
	case VersionPre1:
		if isFault {
			return json.Marshal(pre1Fault{
				Fault:       f.Kind(),
				FaultCode:   f.Code,
				FaultString: f.Message,
				FaultData:   f.Data,
			})
		}
		return json.Marshal(result)
	case Version1:
		if isFault {
			return json.Marshal(v1Response{ID: id, Error: f})
		}
		return json.Marshal(v1Response{ID: id, Result: result})
	case Version2:
		if isFault {
			return json.Marshal(v2Error{JSONRPC: "2.0", ID: id, Error: f})
		}
		return json.Marshal(v2Result{JSONRPC: "2.0", ID: id, Result: result})
	}
	return nil, ErrUnknownVersion
}

// toFault passes Faults through and hides everything else behind a generic fault.
func toFault(err error, failureCode int) *Fault {
	if f, ok := AsFault(err); ok {
		return f
	}
	return InternalError(failureCode, msgFailure)
}

// Response is a decoded response envelope.
type Response struct {
	ID     json.RawMessage
	Result json.RawMessage
	Fault  *Fault
}

// ParseResponse decodes a response envelope for v without binding the result.
func ParseResponse(v Version, data []byte) (*Response, error) {
	if !json.Valid(data) {
		return nil, ParseError("parse error")
	}
	if v == VersionPre1 {
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && trimmed[0] == '{' {
			var obj map[string]json.RawMessage
			if err := json.Unmarshal(trimmed, &obj); err == nil {
				if _, ok := obj["fault"]; ok {
					return &Response{Fault: DecodeFault(trimmed)}, nil
				}
			}
		}
		return &Response{Result: trimmed}, nil
	}
	if v != Version1 && v != Version2 {
		return nil, ErrUnknownVersion
	}

	var env struct {
		ID     json.RawMessage `json:"id"`
		Result json.RawMessage `json:"result"`
		Error  json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, ParseError("response is not an envelope")
	}
	resp := &Response{ID: env.ID, Result: env.Result}
	if len(env.Error) > 0 && !isNull(env.Error) {
		resp.Fault = DecodeFault(env.Error)
	}
	return resp, nil
}

// DecodeResponse decodes a response for v into reply (which may be nil).
// If the response carries a fault it is returned as a *Fault.
func DecodeResponse(v Version, data []byte, reply any) error {
	resp, err := ParseResponse(v, data)
	if err != nil {
		return err
	}
	if resp.Fault != nil {
		return resp.Fault
	}
	if reply == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, reply); err != nil {
		return fmt.Errorf("jsonrpc: decode result: %w", err)
	}
	return nil
}

// DecodeFault rebuilds a Fault from an error object. Both {"code","message","data"}
// and {"faultCode","faultString","faultData"} shapes are accepted.
func DecodeFault(raw json.RawMessage) *Fault {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return InternalError(CodeInternalError, s)
	}
	var w struct {
		Fault       string `json:"fault"`
		Code        *int   `json:"code"`
		Message     string `json:"message"`
		Data        any    `json:"data"`
		FaultCode   *int   `json:"faultCode"`
		FaultString string `json:"faultString"`
		FaultData   any    `json:"faultData"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return ParseError("malformed fault: " + string(raw))
	}
	f := &Fault{}
	switch {
	case w.Code != nil:
		f.Code, f.Message, f.Data = *w.Code, w.Message, w.Data
	case w.FaultCode != nil:
		f.Code, f.Message, f.Data = *w.FaultCode, w.FaultString, w.FaultData
	default:
		f.Code, f.Message = CodeInternalError, w.Message+w.FaultString
	}
	f.kind = kindForName(w.Fault)
	if f.kind == nil {
		f.kind = kindForCode(f.Code)
	}
	return f
}

func kindForName(name string) error {
	switch name {
	case "ParseError":
		return ErrParse
	case "InvalidRequest":
		return ErrInvalidRequest
	case "InvalidParams":
		return ErrInvalidParams
	case "NoSuchFunction":
		return ErrNoSuchFunction
	case "NotCallable":
		return ErrNotCallable
	case "InternalError":
		return ErrInternal
	case "":
		return nil
	}
	return ErrFault
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
