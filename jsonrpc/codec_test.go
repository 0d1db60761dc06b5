package jsonrpc

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

var allVersions = []Version{VersionPre1, Version1, Version2}

func TestResponseRoundTrip(t *testing.T) {
	results := []any{
		1.0,
		"a",
		true,
		nil,
		map[string]any{"apple": 2.0},
		[]any{1.0, 2.0, "a", "b"},
		map[string]any{"a": []any{"b", "c", 12.0, []any{}}, "D": "foo"},
		map[string]any{"faultCode": 3.0, "x": "y"},
	}
	for _, v := range allVersions {
		for _, want := range results {
			data, err := EncodeResponse(v, json.RawMessage(`7`), want)
			if err != nil {
				t.Fatalf("%v: EncodeResponse(%v): %v", v, want, err)
			}
			var got any
			if err := DecodeResponse(v, data, &got); err != nil {
				t.Fatalf("%v: DecodeResponse(%s): %v", v, data, err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("%v: round trip of %#v gave %#v", v, want, got)
			}
		}
	}
}

func TestFaultRoundTrip(t *testing.T) {
	faults := []*Fault{
		NewFault(12, "hello"),
		NewFault(17, "hi").WithData(map[string]any{"retry": true}),
		NoSuchFunction(testNotFound, "function nope not found"),
		InternalError(testFailure, "error"),
		ParseError("parse error"),
	}
	for _, v := range allVersions {
		for _, f := range faults {
			data, err := EncodeResponse(v, json.RawMessage(`"id-1"`), f)
			if err != nil {
				t.Fatalf("%v: EncodeResponse: %v", v, err)
			}
			var got any
			err = DecodeResponse(v, data, &got)
			var decoded *Fault
			if !errors.As(err, &decoded) {
				t.Fatalf("%v: DecodeResponse(%s) = %v, want *Fault", v, data, err)
			}
			if decoded.Code != f.Code || decoded.Message != f.Message {
				t.Errorf("%v: got fault (%d, %q), want (%d, %q)", v, decoded.Code, decoded.Message, f.Code, f.Message)
			}
			if !reflect.DeepEqual(decoded.Data, f.Data) {
				t.Errorf("%v: got data %#v, want %#v", v, decoded.Data, f.Data)
			}
			if got != nil {
				t.Errorf("%v: reply was written on fault: %#v", v, got)
			}
		}
	}
}

func TestFaultKindSurvivesPre1(t *testing.T) {
	data, err := EncodeResponse(VersionPre1, nil, NoSuchFunction(8001, "function x not found"))
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}
	err = DecodeResponse(VersionPre1, data, nil)
	if !errors.Is(err, ErrNoSuchFunction) {
		t.Errorf("got %v, want ErrNoSuchFunction", err)
	}
}

func TestEncodeResponseShapes(t *testing.T) {
	data := map[string]any{"some": "data"}
	tests := []struct {
		name   string
		v      Version
		id     json.RawMessage
		result any
		want   string
	}{
		{"pre1 result", VersionPre1, nil, data, `{"some":"data"}`},
		{"pre1 fault", VersionPre1, nil, NewFault(12, "hello"), `{"fault":"Fault","faultCode":12,"faultString":"hello"}`},
		{"pre1 fault data", VersionPre1, nil, NewFault(12, "hello").WithData("x"), `{"fault":"Fault","faultCode":12,"faultString":"hello","faultData":"x"}`},
		{"v1 result", Version1, json.RawMessage(`1`), data, `{"id":1,"result":{"some":"data"},"error":null}`},
		{"v1 result null id", Version1, nil, data, `{"id":null,"result":{"some":"data"},"error":null}`},
		{"v1 fault", Version1, json.RawMessage(`1`), NewFault(12, "hello"), `{"id":1,"result":null,"error":{"code":12,"message":"hello"}}`},
		{"v2 result", Version2, json.RawMessage(`"a"`), data, `{"jsonrpc":"2.0","id":"a","result":{"some":"data"}}`},
		{"v2 null result", Version2, json.RawMessage(`2`), nil, `{"jsonrpc":"2.0","id":2,"result":null}`},
		{"v2 fault", Version2, json.RawMessage(`"a"`), NewFault(12, "hello"), `{"jsonrpc":"2.0","id":"a","error":{"code":12,"message":"hello"}}`},
		{"plain error hidden", Version2, json.RawMessage(`3`), errSecret, `{"jsonrpc":"2.0","id":3,"error":{"code":-32603,"message":"error"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeResponse(tt.v, tt.id, tt.result)
			if err != nil {
				t.Fatalf("EncodeResponse: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEncodeResponseUnserializable(t *testing.T) {
	for _, v := range allVersions {
		data, err := EncodeResponse(v, json.RawMessage(`1`), make(chan int))
		if err != nil {
			t.Fatalf("%v: EncodeResponse: %v", v, err)
		}
		f, ok := AsFault(DecodeResponse(v, data, nil))
		if !ok {
			t.Fatalf("%v: expected fault, got %s", v, data)
		}
		if f.Code != CodeInternalError || f.Message != "can't serialize output" {
			t.Errorf("%v: got (%d, %q)", v, f.Code, f.Message)
		}
	}
}

func TestEncodeResponseUnknownVersion(t *testing.T) {
	if _, err := EncodeResponse(Version(9), nil, 1); !errors.Is(err, ErrUnknownVersion) {
		t.Errorf("got %v, want ErrUnknownVersion", err)
	}
}

func TestEncodeRequestShapes(t *testing.T) {
	tests := []struct {
		v      Version
		params []any
		id     any
		want   string
	}{
		{VersionPre1, []any{2, 3}, "ignored", `{"method":"add","params":[2,3]}`},
		{VersionPre1, nil, nil, `{"method":"add","params":[]}`},
		{Version1, []any{2, 3}, "abc", `{"method":"add","params":[2,3],"id":"abc"}`},
		{Version1, nil, nil, `{"method":"add","params":[],"id":null}`},
		{Version2, []any{2, 3}, 5, `{"jsonrpc":"2.0","method":"add","params":[2,3],"id":5}`},
	}
	for _, tt := range tests {
		t.Run(tt.v.String(), func(t *testing.T) {
			got, err := EncodeRequest(tt.v, "add", tt.params, tt.id)
			if err != nil {
				t.Fatalf("EncodeRequest: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantVersion  Version
		wantMethod   string
		wantParams   int
		wantID       string
		notification bool
		wantErr      error
	}{
		{"pre1", `{"method":"add","params":[2,3]}`, VersionPre1, "add", 2, "", false, nil},
		{"pre1 no params", `{"method":"complex"}`, VersionPre1, "complex", 0, "", false, nil},
		{"v1", `{"method":"add","params":[2,3],"id":"x"}`, Version1, "add", 2, `"x"`, false, nil},
		{"v1 null id", `{"method":"add","params":[],"id":null}`, Version1, "add", 0, `null`, false, nil},
		{"v2", `{"jsonrpc":"2.0","method":"math.add","params":[1],"id":9}`, Version2, "math.add", 1, `9`, false, nil},
		{"v2 notification", `{"jsonrpc":"2.0","method":"ping","params":[]}`, Version2, "ping", 0, "", true, nil},
		{"null params", `{"method":"x","params":null}`, VersionPre1, "x", 0, "", false, nil},
		{"garbage", `oops`, 0, "", 0, "", false, ErrParse},
		{"not object", `[1,2]`, 0, "", 0, "", false, ErrParse},
		{"null document", `null`, 0, "", 0, "", false, ErrParse},
		{"missing method", `{"params":[]}`, VersionPre1, "", 0, "", false, ErrInvalidRequest},
		{"empty method", `{"method":"","id":1}`, Version1, "", 0, `1`, false, ErrInvalidRequest},
		{"numeric method", `{"method":5}`, VersionPre1, "", 0, "", false, ErrInvalidRequest},
		{"bad version tag", `{"jsonrpc":"1.5","method":"x","id":1}`, Version2, "", 0, `1`, false, ErrInvalidRequest},
		{"object params", `{"jsonrpc":"2.0","method":"x","params":{"a":1},"id":1}`, Version2, "x", 0, `1`, false, ErrInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := DecodeRequest([]byte(tt.body))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got error %v, want %v", err, tt.wantErr)
				}
				if tt.wantErr == ErrParse {
					if req != nil {
						t.Errorf("expected nil request on parse error")
					}
					return
				}
			} else if err != nil {
				t.Fatalf("DecodeRequest: %v", err)
			}
			if req.Version != tt.wantVersion {
				t.Errorf("version: got %v, want %v", req.Version, tt.wantVersion)
			}
			if req.Method != tt.wantMethod {
				t.Errorf("method: got %q, want %q", req.Method, tt.wantMethod)
			}
			if req.Params.Len() != tt.wantParams {
				t.Errorf("params: got %d, want %d", req.Params.Len(), tt.wantParams)
			}
			if string(req.ID) != tt.wantID {
				t.Errorf("id: got %s, want %s", req.ID, tt.wantID)
			}
			if req.Notification != tt.notification {
				t.Errorf("notification: got %v, want %v", req.Notification, tt.notification)
			}
		})
	}
}

func TestDecodeResponseMalformed(t *testing.T) {
	for _, v := range allVersions {
		err := DecodeResponse(v, []byte("oops"), nil)
		if !errors.Is(err, ErrParse) {
			t.Errorf("%v: got %v, want ErrParse", v, err)
		}
		var f *Fault
		if !errors.As(err, &f) || f.Code != CodeParseError {
			t.Errorf("%v: got %v, want code %d", v, err, CodeParseError)
		}
	}
}

func TestDecodeResponseLegacyErrorObject(t *testing.T) {
	body := `{"id": null, "result": null, "error": {"fault": "Fault", "faultCode": 1, "faultString": "oops"}}`
	f, ok := AsFault(DecodeResponse(Version1, []byte(body), nil))
	if !ok {
		t.Fatal("expected fault")
	}
	if f.Code != 1 || f.Message != "oops" {
		t.Errorf("got (%d, %q), want (1, \"oops\")", f.Code, f.Message)
	}
}

func TestDecodeResponseStringError(t *testing.T) {
	body := `{"jsonrpc":"2.0","id":1,"error":"something broke"}`
	f, ok := AsFault(DecodeResponse(Version2, []byte(body), nil))
	if !ok {
		t.Fatal("expected fault")
	}
	if f.Message != "something broke" {
		t.Errorf("got message %q", f.Message)
	}
}

func TestDecodeResponseIntoTypedReply(t *testing.T) {
	var reply struct {
		A []any `json:"a"`
		D string
	}
	body := `{"jsonrpc":"2.0","id":1,"result":{"a":["b","c",12,[]],"D":"foo"}}`
	if err := DecodeResponse(Version2, []byte(body), &reply); err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if reply.D != "foo" || len(reply.A) != 4 {
		t.Errorf("got %+v", reply)
	}
}

func TestParseVersion(t *testing.T) {
	tests := map[string]Version{
		"":     VersionPre1,
		"pre1": VersionPre1,
		"1.0":  Version1,
		"1":    Version1,
		"2.0":  Version2,
		" 2 ":  Version2,
	}
	for in, want := range tests {
		got, err := ParseVersion(in)
		if err != nil || got != want {
			t.Errorf("ParseVersion(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseVersion("3.0"); err == nil {
		t.Error("expected error for 3.0")
	}
}
