package httpserver

import (
	"encoding/json"
	"net/http"
)

type stateClient struct {
	ID       uint64  `json:"id"`
	Key      string  `json:"key,omitempty"`
	Hostport string  `json:"hostport"`
	FPS      float64 `json:"fps"`
}

type stateResponse struct {
	Online  bool          `json:"online"`
	Width   uint32        `json:"width"`
	Height  uint32        `json:"height"`
	Dropped int           `json:"dropped"`
	FPS     float64       `json:"fps"`
	Clients []stateClient `json:"clients"`
}

// handleState serves /state: a flat JSON object with the exposed
// frame's geometry/liveness, the dropped counter, the server fps and
// every attached client's fps. There is no ok/result envelope and no
// encoder or sink section.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeCORS(w)

	exposed := s.currentExposed()

	s.clientsMu.Lock()
	clients := make([]stateClient, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, stateClient{
			ID:       c.id,
			Key:      c.key,
			Hostport: c.hostport,
			FPS:      c.fpsi.FPS(),
		})
	}
	s.clientsMu.Unlock()

	resp := stateResponse{
		Online:  exposed.Online,
		Width:   exposed.Width,
		Height:  exposed.Height,
		Dropped: exposed.dropped,
		FPS:     s.fpsi.FPS(),
		Clients: clients,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
