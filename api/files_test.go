package api

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/lorein/lore/internal/database"
	"github.com/lorein/lore/internal/ingest"
	"github.com/lorein/lore/internal/log"
	"github.com/lorein/lore/internal/tracker"
)

type fakeIngester struct {
	result   *ingest.Result
	err      error
	lastPath string
}

func (f *fakeIngester) Ingest(_ context.Context, path string) (*ingest.Result, error) {
	f.lastPath = path
	return f.result, f.err
}

func newFilesServer(t *testing.T, ingester Ingester) (http.Handler, *tracker.Tracker) {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "lore.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	tr := tracker.New(db, log.NewNop())
	mux := http.NewServeMux()
	NewFilesHandler(tr, ingester, log.NewNop()).RegisterRoutes(mux)
	return mux, tr
}

func TestFiles_ListWithFilter(t *testing.T) {
	handler, tr := newFilesServer(t, &fakeIngester{})
	ctx := context.Background()

	for _, hash := range []string{"aaa", "bbb"} {
		if _, err := tr.AddFile(ctx, "/x/"+hash, hash); err != nil {
			t.Fatalf("AddFile() error = %v", err)
		}
	}
	if err := tr.MarkIndexed(ctx, "aaa"); err != nil {
		t.Fatalf("MarkIndexed() error = %v", err)
	}

	tests := []struct {
		path      string
		wantTotal int
	}{
		{"/api/files", 2},
		{"/api/files?indexed=true", 1},
		{"/api/files?indexed=false", 1},
	}
	for _, tt := range tests {
		rec := doRequest(handler, http.MethodGet, tt.path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s status = %d", tt.path, rec.Code)
		}
		var resp struct {
			Total int `json:"total"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if resp.Total != tt.wantTotal {
			t.Errorf("GET %s total = %d, want %d", tt.path, resp.Total, tt.wantTotal)
		}
	}

	rec := doRequest(handler, http.MethodGet, "/api/files?indexed=maybe", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad filter status = %d, want 400", rec.Code)
	}
}

func TestFiles_Ingest(t *testing.T) {
	ingester := &fakeIngester{result: &ingest.Result{FilesAdded: 2, Chunks: 5}}
	handler, _ := newFilesServer(t, ingester)

	rec := doRequest(handler, http.MethodPost, "/api/ingest", `{"path":"/tmp/docs"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result ingest.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if result.FilesAdded != 2 || result.Chunks != 5 {
		t.Errorf("result = %+v", result)
	}
	if ingester.lastPath != "/tmp/docs" {
		t.Errorf("path passed through = %q", ingester.lastPath)
	}

	rec = doRequest(handler, http.MethodPost, "/api/ingest", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing path status = %d, want 400", rec.Code)
	}
}

func TestFiles_IngestErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"locked", ingest.ErrLocked, http.StatusConflict},
		{"unsupported", ingest.ErrUnsupportedType, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, _ := newFilesServer(t, &fakeIngester{err: tt.err})
			rec := doRequest(handler, http.MethodPost, "/api/ingest", `{"path":"/tmp/x"}`)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
