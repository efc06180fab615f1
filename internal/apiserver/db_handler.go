package apiserver

import (
	"net/http"

	"github.com/pedrow21/proxima/internal/store"
	"github.com/pedrow21/proxima/pkg/models"
)

// dbOpRequest is the wire shape of DatabaseRequestVariant. Exactly the
// fields relevant to Kind are populated; spec.md leaves the JSON shape
// itself out of scope, so this is one faithful binding of the fixed
// database-actor operation table, not the only possible one.
type dbOpRequest struct {
	Kind       string         `json:"kind"`
	ID         *models.ItemID `json:"id,omitempty"`
	Item       *models.Item   `json:"item,omitempty"`
	InfoKind   store.InfoKind `json:"info_kind,omitempty"`
	VerifyKey  *uint64        `json:"verify_key,omitempty"`
	Descriptor string         `json:"descriptor,omitempty"`
}

type dbRequest struct {
	AuthKey uint64      `json:"auth_key"`
	Request dbOpRequest `json:"request"`
}

// dbReply mirrors store.Reply with Err rendered as a string, since Go
// errors don't marshal to JSON on their own.
type dbReply struct {
	Err string `json:"error,omitempty"`

	Item  *models.Item  `json:"item,omitempty"`
	Items []models.Item `json:"items,omitempty"`
	ID    *models.ItemID `json:"id,omitempty"`

	Counts  map[models.ItemKind]int         `json:"counts,omitempty"`
	Latest  map[models.ItemKind]models.Item `json:"latest,omitempty"`
	Updates []models.Item                   `json:"updates,omitempty"`

	AuthKey  *uint64 `json:"auth_key,omitempty"`
	Verified *bool   `json:"verified,omitempty"`

	Prompt *models.Context `json:"prompt,omitempty"`

	Saved bool `json:"saved,omitempty"`
}

func toDBReply(r store.Reply) dbReply {
	out := dbReply{
		Item: r.Item, Items: r.Items,
		Counts: r.Counts, Latest: r.Latest, Updates: r.Updates,
		Saved: r.Saved,
	}
	if r.Err != nil {
		out.Err = r.Err.Error()
	}
	if r.ID != (models.ItemID{}) {
		id := r.ID
		out.ID = &id
	}
	if r.AuthKey != 0 {
		out.AuthKey = &r.AuthKey
	}
	if r.Verified {
		out.Verified = &r.Verified
	}
	if len(r.Prompt.Parts) > 0 {
		out.Prompt = &r.Prompt
	}
	return out
}

// handleDB implements POST /db: verify auth_key, translate the wire op
// into a store.Op, run it, and relay the reply.
func (s *Server) handleDB(w http.ResponseWriter, r *http.Request) {
	var req dbRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if !s.verifyAuthKey(req.AuthKey) {
		writeError(w, http.StatusForbidden, "wrong auth")
		return
	}

	op, err := toStoreOp(req.Request, req.AuthKey)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply := s.store.Do(op)
	writeJSON(w, http.StatusOK, toDBReply(reply))
}

// verifyAuthKey confirms the raw key still names a live session in the
// Database Actor. It checks liveness only; no session token signature is
// involved.
func (s *Server) verifyAuthKey(key uint64) bool {
	reply := s.store.Do(store.VerifyAuthKeyOp{Key: key})
	return reply.Verified
}

func toStoreOp(op dbOpRequest, authKey uint64) (store.Op, error) {
	switch op.Kind {
	case "get":
		if op.ID == nil {
			return nil, errBadOp("get", "id")
		}
		return store.GetOp{ID: *op.ID}, nil
	case "get_all":
		return store.GetAllOp{}, nil
	case "add":
		if op.Item == nil {
			return nil, errBadOp("add", "item")
		}
		return store.AddOp{Item: *op.Item, AuthKey: authKey}, nil
	case "update":
		if op.Item == nil {
			return nil, errBadOp("update", "item")
		}
		return store.UpdateOp{Item: *op.Item, AuthKey: authKey}, nil
	case "info":
		return store.InfoOp{Kind: op.InfoKind, AuthKey: authKey}, nil
	case "new_auth_key":
		return store.NewAuthKeyOp{}, nil
	case "verify_auth_key":
		if op.VerifyKey == nil {
			return nil, errBadOp("verify_auth_key", "verify_key")
		}
		return store.VerifyAuthKeyOp{Key: *op.VerifyKey}, nil
	case "get_agent_prompt":
		return store.GetAgentPromptOp{Descriptor: op.Descriptor}, nil
	case "save":
		return store.SaveOp{}, nil
	default:
		return nil, errBadOp(op.Kind, "")
	}
}
