package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-capa/internal/storage"
)

// MountFiles serves the course filestore that src= attributes read from.
func MountFiles(r chi.Router, fs storage.Store) {
	// PUT /files/*  body: file content
	r.Put("/*", func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
		stored, err := fs.Put(key, io.LimitReader(r.Body, maxUpload))
		if err != nil {
			http.Error(w, "store error: "+err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"key": stored})
	})

	// GET /files/*
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
		rc, err := fs.Get(key)
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = io.Copy(w, rc)
	})
}
