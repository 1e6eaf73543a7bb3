package delivery

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"label-printer/internal/archive"
	"label-printer/internal/capture"
	"label-printer/internal/pipeline"
	"label-printer/internal/printserver"
	"label-printer/internal/storage"
)

func newLocal(t *testing.T, dir string) *Local {
	t.Helper()
	s, err := storage.NewFileStorage(context.Background(), storage.FileConfig{Directory: dir})
	if err != nil {
		t.Fatalf("NewFileStorage: %v", err)
	}
	return NewLocal(s, nil)
}

func TestLocalDeliver_FileNames(t *testing.T) {
	single := pipeline.Result{
		Payload: capture.Blob{Data: []byte("png"), ContentType: capture.ContentTypePNG},
		Count:   1,
	}
	multi, err := archive.Build([]capture.Blob{{Data: []byte("a")}, {Data: []byte("b")}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	tests := []struct {
		name     string
		result   pipeline.Result
		wantFile string
	}{
		{"single", single, "label.png"},
		{"archive", pipeline.Result{IsArchive: true, Payload: multi, Count: 2}, "labels.zip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			location, err := newLocal(t, dir).Deliver(context.Background(), tt.result)
			if err != nil {
				t.Fatalf("Deliver: %v", err)
			}
			if want := filepath.Join(dir, tt.wantFile); location != want {
				t.Errorf("location = %q, want %q", location, want)
			}
			got, err := os.ReadFile(location)
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			if !bytes.Equal(got, tt.result.Payload.Data) {
				t.Error("saved file differs from payload")
			}
		})
	}
}

func TestLocalDeliver_Repeatable(t *testing.T) {
	blobs := []capture.Blob{{Data: []byte("one")}, {Data: []byte("two")}, {Data: []byte("three")}}

	var artifacts [][]byte
	for i := 0; i < 2; i++ {
		payload, err := archive.Build(blobs)
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		location, err := newLocal(t, t.TempDir()).Deliver(context.Background(), pipeline.Result{IsArchive: true, Payload: payload, Count: 3})
		if err != nil {
			t.Fatalf("Deliver: %v", err)
		}
		data, err := os.ReadFile(location)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		artifacts = append(artifacts, data)
	}

	if !bytes.Equal(artifacts[0], artifacts[1]) {
		t.Error("expected byte-identical artifacts for unchanged labels")
	}
}

func TestRemoteDeliver(t *testing.T) {
	var gotContentType string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/queue" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = io.WriteString(w, `{"data":{"addedItems":1,"positionInQueue":4}}`)
	}))
	defer server.Close()

	client, err := printserver.NewClient(printserver.DefaultConfig())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	payload := capture.Blob{Data: []byte("\x89PNG label"), ContentType: capture.ContentTypePNG}
	receipt, err := NewRemote(client, nil).Deliver(context.Background(), pipeline.Result{Payload: payload, Count: 1}, server.URL)
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if gotContentType != capture.ContentTypePNG {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if diff := cmp.Diff(payload.Data, gotBody); diff != "" {
		t.Errorf("body (-want +got):\n%s", diff)
	}
	message := receipt.String()
	if !strings.Contains(message, "one item") || !strings.Contains(message, "#4") {
		t.Errorf("unexpected message %q", message)
	}
}

func TestRemoteDeliver_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":{"type":"PrinterOffline","message":"The label printer is offline."}}`)
	}))
	defer server.Close()

	client, _ := printserver.NewClient(printserver.DefaultConfig())
	_, err := NewRemote(client, nil).Deliver(context.Background(), pipeline.Result{Payload: capture.Blob{Data: []byte("x")}}, server.URL)

	var serverError *printserver.ServerError
	if !errors.As(err, &serverError) {
		t.Fatalf("expected ServerError, got %v", err)
	}
	if serverError.Error() != "PrinterOffline: The label printer is offline." {
		t.Errorf("Error() = %q", serverError.Error())
	}
}
