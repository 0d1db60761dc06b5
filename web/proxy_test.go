package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/mnehpets/rpcserve/jsonrpc"
)

func TestProxyVersions(t *testing.T) {
	srv := httptest.NewServer(NewResource(newTestDispatcher(t)))
	defer srv.Close()
	ctx := context.Background()

	for _, v := range []jsonrpc.Version{jsonrpc.VersionPre1, jsonrpc.Version1, jsonrpc.Version2} {
		t.Run(v.String(), func(t *testing.T) {
			p, err := NewProxy(srv.URL, WithVersion(v))
			if err != nil {
				t.Fatal(err)
			}
			var sum int
			if err := p.Call(ctx, "add", &sum, 2, 3); err != nil || sum != 5 {
				t.Errorf("add = %d, %v", sum, err)
			}

			err = p.Call(ctx, "fault", nil)
			var f *jsonrpc.Fault
			if !errors.As(err, &f) || f.Code != 12 || f.Message != "hello" {
				t.Errorf("fault: got %v", err)
			}

			err = p.Call(ctx, "fail", nil)
			if !errors.As(err, &f) || f.Code != 666 || f.Message != "error" {
				t.Errorf("fail: got %v", err)
			}
		})
	}
}

// requestLog is a Processor remembering the headers of the last request.
type requestLog struct {
	mu     sync.Mutex
	header http.Header
}

func (l *requestLog) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	l.mu.Lock()
	l.header = r.Header.Clone()
	l.mu.Unlock()
	return next(w, r)
}

func (l *requestLog) last() *http.Request {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &http.Request{Header: l.header}
}

func TestProxyCredentials(t *testing.T) {
	log := &requestLog{}
	srv := httptest.NewServer(NewResource(newTestDispatcher(t), WithProcessors(log)))
	defer srv.Close()
	base := "http://alice:secret@" + srv.Listener.Addr().String() + "/rpc"

	p, err := NewProxy(base, WithHeader("X-Client", "tests"))
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Call(context.Background(), "echo", nil, "x"); err != nil {
		t.Fatal(err)
	}
	user, pass, ok := log.last().BasicAuth()
	if !ok || user != "alice" || pass != "secret" {
		t.Errorf("basic auth = %q %q %v", user, pass, ok)
	}
	if got := log.last().Header.Get("X-Client"); got != "tests" {
		t.Errorf("X-Client = %q", got)
	}

	p, _ = NewProxy(base, WithBasicAuth("bob", "hunter2"))
	if err := p.Call(context.Background(), "echo", nil, "x"); err != nil {
		t.Fatal(err)
	}
	if user, pass, _ := log.last().BasicAuth(); user != "bob" || pass != "hunter2" {
		t.Errorf("WithBasicAuth: got %q %q", user, pass)
	}

	p, _ = NewProxy(srv.URL)
	if err := p.Call(context.Background(), "echo", nil, "x"); err != nil {
		t.Fatal(err)
	}
	if _, _, ok := log.last().BasicAuth(); ok {
		t.Error("basic auth sent without credentials")
	}
}

func TestProxyTokenSource(t *testing.T) {
	log := &requestLog{}
	srv := httptest.NewServer(NewResource(newTestDispatcher(t), WithProcessors(log)))
	defer srv.Close()

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "abc123", TokenType: "Bearer"})
	p, err := NewProxy(srv.URL, WithTokenSource(ts), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Call(context.Background(), "echo", nil, "x"); err != nil {
		t.Fatal(err)
	}
	if got := log.last().Header.Get("Authorization"); got != "Bearer abc123" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestProxyTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	p, _ := NewProxy(srv.URL)
	err := p.Call(context.Background(), "add", nil, 1, 2)
	var te *jsonrpc.TransportError
	if !errors.As(err, &te) || te.Op != "status" || te.Status != http.StatusForbidden {
		t.Errorf("403: got %v", err)
	}
	if _, ok := jsonrpc.AsFault(err); ok {
		t.Error("status error reported as fault")
	}

	srv.Close()
	err = p.Call(context.Background(), "add", nil, 1, 2)
	if !errors.As(err, &te) || te.Op != "post" {
		t.Errorf("closed server: got %v", err)
	}
}

func TestProxyContextTimeout(t *testing.T) {
	srv := httptest.NewServer(NewResource(newTestDispatcher(t), WithLogger(quietLogger())))
	defer srv.Close()
	p, _ := NewProxy(srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Call(ctx, "sleep", nil, 2000)
	if !jsonrpc.IsTransportError(err) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v", err)
	}
}

func TestNewProxyRejectsBadURL(t *testing.T) {
	for _, u := range []string{"ftp://example.com/rpc", "::not a url", "example.com/rpc"} {
		if _, err := NewProxy(u); err == nil {
			t.Errorf("NewProxy(%q) accepted", u)
		}
	}
}
