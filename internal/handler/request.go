// Package handler contains the HTTP handlers for the Forge JSON API.
//
// This file provides shared request helpers: JSON body decoding with a
// size cap, UUID path parameters, and pagination query parsing.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/cvforge/forge/internal/domain"
)

// maxRequestBodySize caps JSON request bodies at 512KB. Document content
// itself is capped lower by the service layer; this bound just keeps one
// request from holding an arbitrary amount of memory.
const maxRequestBodySize = 512 * 1024

// decodeJSON reads and decodes a JSON request body into dst.
// Unknown fields are rejected so typos in client payloads fail loudly.
func decodeJSON(w http.ResponseWriter, r *http.Request, op string, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			return domain.Errorf(domain.ETOOLARGE, op, "request body must be at most %d bytes", maxRequestBodySize)
		case errors.Is(err, io.EOF):
			return domain.Invalid(op, "request body is required")
		default:
			return domain.Invalid(op, "invalid JSON: "+err.Error())
		}
	}

	// A second token means trailing garbage after the JSON value.
	if dec.More() {
		return domain.Invalid(op, "request body must contain a single JSON object")
	}
	return nil
}

// pathID extracts and parses a UUID path parameter.
func pathID(r *http.Request, name, op string) (uuid.UUID, error) {
	raw := r.PathValue(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.Invalid(op, "invalid "+name)
	}
	return id, nil
}

// parsePagination reads page and per_page query parameters, applying the
// same defaults the service layer uses so the two never disagree.
func parsePagination(r *http.Request) (page, perPage int) {
	page = 1
	perPage = 20

	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			page = n
		}
	}
	if v := r.URL.Query().Get("per_page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 && n <= 100 {
			perPage = n
		}
	}
	return page, perPage
}

// parseCategories reads a comma-separated category filter query parameter.
// An empty parameter means no filter; unknown values are rejected.
func parseCategories(r *http.Request, op string) ([]domain.DocumentCategory, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("category"))
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	categories := make([]domain.DocumentCategory, 0, len(parts))
	for _, p := range parts {
		c := domain.DocumentCategory(strings.TrimSpace(p))
		if !c.IsValid() {
			return nil, domain.Invalid(op, "unknown document category: "+string(c))
		}
		categories = append(categories, c)
	}
	return categories, nil
}
