package api

import "net/http"

func (s *Server) proxyStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.proxies.GetStats(r.Context())
	if err != nil {
		http.Error(w, "failed to get proxy stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
