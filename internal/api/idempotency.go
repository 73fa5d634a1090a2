package api

import (
	"bytes"
	"net/http"

	"github.com/Tyrannozavr/steamParser/internal/idempotency"
)

// withIdempotency replays the stored response for a previously-seen
// Idempotency-Key instead of re-running the handler, matching the
// teacher's main.go api.withIdempotency wrapping of mutating POST routes.
func (s *Server) withIdempotency(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Idempotency-Key")
		if key == "" || s.idemStore == nil {
			next(w, r)
			return
		}

		if resp, ok := s.idemStore.Get(r.Context(), key); ok {
			for k, vs := range resp.Headers {
				for _, v := range vs {
					w.Header().Add(k, v)
				}
			}
			w.WriteHeader(resp.StatusCode)
			_, _ = w.Write(resp.Body)
			return
		}

		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK, body: &bytes.Buffer{}}
		next(rec, r)

		s.idemStore.Set(r.Context(), key, idempotency.Response{
			StatusCode: rec.status,
			Body:       rec.body.Bytes(),
			Headers:    w.Header().Clone(),
		})
	}
}

type responseRecorder struct {
	http.ResponseWriter
	status int
	body   *bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
