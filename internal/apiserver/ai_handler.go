package apiserver

import (
	"encoding/json"
	"net/http"

	"github.com/pedrow21/proxima/internal/endpoint"
	"github.com/pedrow21/proxima/internal/store"
	"github.com/pedrow21/proxima/pkg/models"
)

// aiOpRequest is the wire shape of EndpointRequestVariant: a full prompt
// context plus the session type and an optional reference to a stored
// configuration (ChatConfiguration.Settings isn't itself JSON-marshalable
// over the wire, so configurations are always addressed by id).
type aiOpRequest struct {
	Context     models.Context     `json:"context"`
	SessionType models.SessionType `json:"session_type"`
	ConfigID    *int               `json:"config_id,omitempty"`
	Streaming   bool               `json:"streaming"`
}

type aiRequest struct {
	AuthKey uint64      `json:"auth_key"`
	Request aiOpRequest `json:"request"`
}

// aiReplyWire is the single-reply EndpointResponseVariant shape.
type aiReplyWire struct {
	Err            string              `json:"error,omitempty"`
	Block          *models.ContextPart `json:"block,omitempty"`
	MultiTurnBlock *models.Context     `json:"multi_turn_block,omitempty"`
}

// streamEventWire is one element of the streaming EndpointResponseVariant
// sequence.
type streamEventWire struct {
	Position models.ContextPosition `json:"position,omitempty"`
	Data     models.ContextData     `json:"data,omitempty"`
	Start    bool                   `json:"start,omitempty"`
	Err      string                 `json:"error,omitempty"`
}

// handleAI implements POST /ai: verify auth_key, resolve the referenced
// configuration (if any), and either wait for a single reply or relay the
// endpoint actor's stream as a sequence of framed JSON values.
func (s *Server) handleAI(w http.ResponseWriter, r *http.Request) {
	var req aiRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if !s.verifyAuthKey(req.AuthKey) {
		writeError(w, http.StatusForbidden, "wrong auth")
		return
	}

	config, err := s.resolveConfig(req.Request.ConfigID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply := make(chan endpoint.Response, 1)
	s.endpoint.Mailbox().SendNormal(endpoint.Request{
		Variant: endpoint.RespondToFullPrompt{
			Context:     req.Request.Context,
			Streaming:   req.Request.Streaming,
			SessionType: req.Request.SessionType,
			Config:      config,
		},
		Reply: reply,
	})

	resp := <-reply
	if resp.Err != nil {
		writeJSON(w, http.StatusOK, aiReplyWire{Err: resp.Err.Error()})
		return
	}
	if resp.Stream != nil {
		s.streamAI(w, resp.Stream)
		return
	}
	writeJSON(w, http.StatusOK, aiReplyWire{Block: resp.Block, MultiTurnBlock: resp.MultiTurnBlock})
}

func (s *Server) resolveConfig(id *int) (*models.ChatConfiguration, error) {
	if id == nil {
		return nil, nil
	}
	reply := s.store.Do(store.GetOp{ID: models.ItemID{Kind: models.KindConfig, ID: *id}})
	if reply.Err != nil {
		return nil, reply.Err
	}
	if reply.Item == nil || reply.Item.Config == nil {
		return nil, errBadOp("get_config", "id")
	}
	return reply.Item.Config, nil
}

// streamAI writes one JSON value per StreamEvent, flushing after each so
// the client observes the framed sequence spec.md §6 describes rather
// than a single buffered response.
func (s *Server) streamAI(w http.ResponseWriter, sink <-chan endpoint.StreamEvent) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	for ev := range sink {
		wire := streamEventWire{Position: ev.Position, Data: ev.Data, Start: ev.Start}
		if ev.Err != nil {
			wire.Err = ev.Err.Error()
		}
		if err := enc.Encode(wire); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}
