package chi

import (
	"github.com/go-chi/chi/v5"
)

// Routes mounts every API endpoint on the router. Middleware is the
// caller's concern.
func (s *Server) Routes(r chi.Router) {
	r.Post("/v1/ask", s.Ask)
	r.Post("/v1/ask/debug", s.AskDebug)
	r.Post("/v1/recs/suggest", s.Suggest)
	r.Get("/v1/flags", s.GetFlags)
	r.Get("/health", s.GetHealth)
}
