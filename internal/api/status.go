package api

import "net/http"

type statusSnapshot struct {
	ProxyStats interface{} `json:"proxy_stats"`
}

func (s *Server) statusSnapshot(w http.ResponseWriter, r *http.Request) {
	stats, err := s.proxies.GetStats(r.Context())
	if err != nil {
		http.Error(w, "failed to build status snapshot", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, statusSnapshot{ProxyStats: stats})
}
