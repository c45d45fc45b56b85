package datapond

import (
	"net/http"
)

// Handler returns an http.Handler implementing the Data Lake Gen2 REST API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Account-level operations
	mux.HandleFunc("GET /{$}", s.handleServiceGet)

	// Filesystem-level operations
	mux.HandleFunc("PUT /{filesystem}", func(w http.ResponseWriter, r *http.Request) {
		filesystem := r.PathValue("filesystem")
		s.handleFilesystemPut(w, r, filesystem)
	})
	mux.HandleFunc("GET /{filesystem}", func(w http.ResponseWriter, r *http.Request) {
		filesystem := r.PathValue("filesystem")
		s.handleFilesystemGet(w, r, filesystem)
	})
	mux.HandleFunc("DELETE /{filesystem}", func(w http.ResponseWriter, r *http.Request) {
		filesystem := r.PathValue("filesystem")
		s.handleFilesystemDelete(w, r, filesystem)
	})

	// Path-level operations
	mux.HandleFunc("PUT /{filesystem}/{path...}", func(w http.ResponseWriter, r *http.Request) {
		filesystem := r.PathValue("filesystem")
		path := r.PathValue("path")
		s.handlePathPut(w, r, filesystem, path)
	})
	mux.HandleFunc("PATCH /{filesystem}/{path...}", func(w http.ResponseWriter, r *http.Request) {
		filesystem := r.PathValue("filesystem")
		path := r.PathValue("path")
		s.handlePathPatch(w, r, filesystem, path)
	})
	mux.HandleFunc("DELETE /{filesystem}/{path...}", func(w http.ResponseWriter, r *http.Request) {
		filesystem := r.PathValue("filesystem")
		path := r.PathValue("path")
		s.handlePathDelete(w, r, filesystem, path)
	})
	mux.HandleFunc("GET /{filesystem}/{path...}", func(w http.ResponseWriter, r *http.Request) {
		filesystem := r.PathValue("filesystem")
		path := r.PathValue("path")
		s.handleReadPath(w, r, filesystem, path)
	})
	mux.HandleFunc("HEAD /{filesystem}/{path...}", func(w http.ResponseWriter, r *http.Request) {
		filesystem := r.PathValue("filesystem")
		path := r.PathValue("path")
		s.handleGetPathProperties(w, r, filesystem, path)
	})

	inject := FailureInjection(s.cfg.FailureChance, s.cfg.FailureRoll)

	return LogRequest(Recoverer(RequestID(inject(SlashFix(mux)))))
}
