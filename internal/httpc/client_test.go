package httpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != UserAgent {
			t.Errorf("User-Agent: got %q", r.Header.Get("User-Agent"))
		}
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	resp, err := GetContext(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	body, err := ReadBody(resp)
	if err != nil {
		t.Fatalf("ReadBody: %v", err)
	}
	if string(body) != "hello" {
		t.Errorf("body: got %q, want hello", body)
	}
}

func TestReadBody_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	resp, err := GetContext(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if _, err := ReadBody(resp); err == nil {
		t.Error("expected error for 404")
	}
}

func TestGetContext_Canceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := GetWith(ctx, NewClient(5*time.Second), srv.URL); err == nil {
		t.Error("expected error after context timeout")
	}
}
