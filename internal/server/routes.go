package server

import "net/http"

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /jobs", s.handleCreateJob)
	mux.HandleFunc("GET /jobs", s.handleListJobs)
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	mux.HandleFunc("GET /jobs/{id}/pages/{n}/image", s.handlePageImage)
	mux.HandleFunc("GET /jobs/{id}/export.csv", s.handleExportCSV)
	mux.HandleFunc("GET /jobs/{id}/export.xlsx", s.handleExportXLSX)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	return mux
}
