package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExtract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		handler     http.HandlerFunc
		wantErr     bool
		wantTitle   string
		wantContent string
	}{
		{
			name: "title and paragraphs",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				_, _ = w.Write([]byte(`<html><head><title>Go Generics</title></head><body><nav>skip me</nav><p>Type parameters.</p><p>Constraints.</p></body></html>`))
			},
			wantTitle:   "Go Generics",
			wantContent: "Type parameters.\nConstraints.",
		},
		{
			name: "og title fallback",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				_, _ = w.Write([]byte(`<html><head><meta property="og:title" content="From OG"/></head><body><p>Body.</p></body></html>`))
			},
			wantTitle:   "From OG",
			wantContent: "Body.",
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			},
			wantErr: true,
		},
		{
			name: "binary content type",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/pdf")
				_, _ = w.Write([]byte("%PDF-1.4"))
			},
			wantErr: true,
		},
		{
			name: "empty page",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				_, _ = w.Write([]byte(`<html><head></head><body></body></html>`))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			result, err := New(srv.Client()).Extract(context.Background(), srv.URL)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if result.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", result.Title, tt.wantTitle)
			}
			if result.Content != tt.wantContent {
				t.Errorf("Content = %q, want %q", result.Content, tt.wantContent)
			}
		})
	}
}

func TestExtract_SkipsNonContentElements(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>T</title><style>.x{}</style></head><body><script>var x;</script><footer>foot</footer><p>keep</p></body></html>`))
	}))
	defer srv.Close()

	result, err := New(srv.Client()).Extract(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if strings.Contains(result.Content, "var x") || strings.Contains(result.Content, "foot") {
		t.Errorf("content should exclude script/footer text, got %q", result.Content)
	}
}
