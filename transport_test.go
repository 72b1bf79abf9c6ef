package tangguh

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestHTTPTransportBaseURLJoin(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
	}))
	defer server.Close()

	tests := []struct {
		name    string
		baseURL string
		target  string
		want    string
	}{
		{"plain join", server.URL, "/users", "/users"},
		{"trailing slash on base", server.URL + "/", "/users", "/users"},
		{"no leading slash on target", server.URL, "users", "/users"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewHTTPTransport(tt.baseURL, nil)
			resp, err := tr.Do(context.Background(), &Request{Method: "GET", Target: tt.target})
			if err != nil {
				t.Fatalf("Do() error: %v", err)
			}
			if resp.StatusCode != 200 {
				t.Errorf("Expected 200, got %d", resp.StatusCode)
			}
			if path != tt.want {
				t.Errorf("Expected path %q, got %q", tt.want, path)
			}
		})
	}
}

func TestHTTPTransportAbsoluteTargetBypassesBase(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`direct`))
	}))
	defer server.Close()

	tr := NewHTTPTransport("http://base.invalid", nil)
	resp, err := tr.Do(context.Background(), &Request{Method: "GET", Target: server.URL + "/abs"})
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if string(resp.Body) != "direct" {
		t.Errorf("Expected direct response, got %q", resp.Body)
	}
}

func TestHTTPTransportReturnsResponseForAnyStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`upstream dead`))
	}))
	defer server.Close()

	tr := NewHTTPTransport(server.URL, nil)
	resp, err := tr.Do(context.Background(), &Request{Method: "GET", Target: "/x"})
	if err != nil {
		t.Fatalf("Expected nil error for received response, got %v", err)
	}
	if resp.StatusCode != 502 {
		t.Errorf("Expected 502, got %d", resp.StatusCode)
	}
	if string(resp.Body) != "upstream dead" {
		t.Errorf("Body not preserved: %q", resp.Body)
	}
}

func TestHTTPTransportConnectionRefused(t *testing.T) {
	// A closed server guarantees a network-level failure.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	tr := NewHTTPTransport(server.URL, nil)
	_, err := tr.Do(context.Background(), &Request{Method: "GET", Target: "/x"})
	if err == nil {
		t.Fatal("Expected error for refused connection")
	}
	var ce *Error
	if !errors.As(err, &ce) || ce.Type != ErrorTypeTransport {
		t.Errorf("Expected Transport error, got %v", err)
	}
}

func TestEncodeBody(t *testing.T) {
	tests := []struct {
		name            string
		body            any
		want            string
		wantContentType string
	}{
		{"nil", nil, "", ""},
		{"string", "hello", "hello", "text/plain"},
		{"bytes", []byte("raw"), "raw", ""},
		{"reader", strings.NewReader("streamed"), "streamed", ""},
		{"struct", map[string]int{"n": 1}, `{"n":1}`, "application/json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, contentType, err := encodeBody(tt.body)
			if err != nil {
				t.Fatalf("encodeBody() error: %v", err)
			}
			if contentType != tt.wantContentType {
				t.Errorf("Expected content type %q, got %q", tt.wantContentType, contentType)
			}
			if tt.body == nil {
				if reader != nil {
					t.Error("Expected nil reader for nil body")
				}
				return
			}
			data, err := io.ReadAll(reader)
			if err != nil {
				t.Fatalf("ReadAll() error: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("Expected body %q, got %q", tt.want, data)
			}
		})
	}
}

func TestEncodeBodyUnmarshalable(t *testing.T) {
	if _, _, err := encodeBody(make(chan int)); err == nil {
		t.Error("Expected error for unmarshalable body")
	}
}

func TestHTTPTransportQueryMergedWithTarget(t *testing.T) {
	var query url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
	}))
	defer server.Close()

	tr := NewHTTPTransport(server.URL, nil)
	_, err := tr.Do(context.Background(), &Request{
		Method: "GET",
		Target: "/search?sort=asc",
		Query:  url.Values{"q": {"go"}},
	})
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if query.Get("sort") != "asc" {
		t.Errorf("Target query lost: %v", query)
	}
	if query.Get("q") != "go" {
		t.Errorf("Request query lost: %v", query)
	}
}

func TestHTTPTransportCallerContentTypeWins(t *testing.T) {
	var contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
	}))
	defer server.Close()

	tr := NewHTTPTransport(server.URL, nil)
	_, err := tr.Do(context.Background(), &Request{
		Method:  "POST",
		Target:  "/x",
		Headers: map[string]string{"Content-Type": "application/xml"},
		Body:    bytes.NewReader([]byte(`<x/>`)),
	})
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if contentType != "application/xml" {
		t.Errorf("Expected caller content type, got %q", contentType)
	}
}

func TestClassifyTransportError(t *testing.T) {
	expired, cancelExpired := context.WithTimeout(context.Background(), 0)
	defer cancelExpired()
	<-expired.Done()

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want string
	}{
		{"deadline", expired, expired.Err(), ErrorTypeTimeout},
		{"canceled", canceled, canceled.Err(), ErrorTypeCanceled},
		{"network", context.Background(), errors.New("connection reset"), ErrorTypeTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyTransportError(tt.ctx, tt.err)
			if got.Type != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got.Type)
			}
		})
	}
}
