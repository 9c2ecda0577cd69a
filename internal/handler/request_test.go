package handler

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cvforge/forge/internal/domain"
)

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Title string `json:"title"`
	}

	t.Run("valid body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/documents", strings.NewReader(`{"title":"My CV"}`))
		rec := httptest.NewRecorder()

		var p payload
		if err := decodeJSON(rec, req, "test.op", &p); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Title != "My CV" {
			t.Errorf("expected title My CV, got %q", p.Title)
		}
	})

	t.Run("empty body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/documents", strings.NewReader(""))
		rec := httptest.NewRecorder()

		var p payload
		err := decodeJSON(rec, req, "test.op", &p)
		if err == nil {
			t.Fatal("expected error for empty body")
		}
		if domain.ErrorCode(err) != domain.EINVALID {
			t.Errorf("expected EINVALID, got %s", domain.ErrorCode(err))
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/documents", strings.NewReader(`{"titel":"typo"}`))
		rec := httptest.NewRecorder()

		var p payload
		if err := decodeJSON(rec, req, "test.op", &p); err == nil {
			t.Fatal("expected error for unknown field")
		}
	})

	t.Run("trailing garbage", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/documents", strings.NewReader(`{"title":"a"}{"title":"b"}`))
		rec := httptest.NewRecorder()

		var p payload
		if err := decodeJSON(rec, req, "test.op", &p); err == nil {
			t.Fatal("expected error for trailing content")
		}
	})
}

func TestPathID(t *testing.T) {
	t.Run("invalid uuid", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/documents/not-a-uuid", nil)
		req.SetPathValue("id", "not-a-uuid")

		_, err := pathID(req, "id", "test.op")
		if err == nil {
			t.Fatal("expected error for invalid uuid")
		}
		if domain.ErrorCode(err) != domain.EINVALID {
			t.Errorf("expected EINVALID, got %s", domain.ErrorCode(err))
		}
	})

	t.Run("valid uuid", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/documents/550e8400-e29b-41d4-a716-446655440000", nil)
		req.SetPathValue("id", "550e8400-e29b-41d4-a716-446655440000")

		id, err := pathID(req, "id", "test.op")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id.String() != "550e8400-e29b-41d4-a716-446655440000" {
			t.Errorf("unexpected id: %s", id)
		}
	})
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		page    int
		perPage int
	}{
		{"defaults", "", 1, 20},
		{"explicit", "page=3&per_page=50", 3, 50},
		{"zero page clamps", "page=0", 1, 20},
		{"oversized per_page ignored", "per_page=500", 1, 20},
		{"non-numeric ignored", "page=abc&per_page=xyz", 1, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/documents?"+tt.query, nil)
			page, perPage := parsePagination(req)
			if page != tt.page || perPage != tt.perPage {
				t.Errorf("got page=%d per_page=%d, want page=%d per_page=%d", page, perPage, tt.page, tt.perPage)
			}
		})
	}
}

func TestParseCategories(t *testing.T) {
	t.Run("empty means no filter", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/usage/events", nil)
		cats, err := parseCategories(req, "test.op")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cats != nil {
			t.Errorf("expected nil filter, got %v", cats)
		}
	})

	t.Run("comma separated", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/usage/events?category=cv,letter", nil)
		cats, err := parseCategories(req, "test.op")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cats) != 2 || cats[0] != domain.CategoryCV || cats[1] != domain.CategoryLetter {
			t.Errorf("unexpected categories: %v", cats)
		}
	})

	t.Run("unknown category rejected", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/usage/events?category=resume", nil)
		if _, err := parseCategories(req, "test.op"); err == nil {
			t.Fatal("expected error for unknown category")
		}
	})
}
