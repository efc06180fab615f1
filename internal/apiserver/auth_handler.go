package apiserver

import (
	"net/http"
	"strings"

	"github.com/pedrow21/proxima/internal/store"
	"github.com/pedrow21/proxima/pkg/models"
)

type deviceFields struct {
	Name  string            `json:"name"`
	Type  models.DeviceType `json:"type"`
	OS    string            `json:"os"`
	Model string            `json:"model"`
}

type authRequest struct {
	Username     string       `json:"username"`
	PasswordHash string       `json:"password_hash"`
	Device       deviceFields `json:"device"`
}

type authResponse struct {
	SessionToken string `json:"session_token"`
	DeviceID     int    `json:"device_id"`
}

// handleAuth implements POST /auth. The password comparison scheme is a
// non-core concern (spec.md names the password_hash field, not the
// hashing algorithm) so it is delegated to s.password; everything else —
// device fingerprint reuse, session minting, token issuance — lives here.
func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	userReply := s.store.Do(store.GetOp{ID: models.ItemID{Kind: models.KindUserData}})
	if userReply.Err != nil || userReply.Item == nil || userReply.Item.UserData == nil {
		writeError(w, http.StatusForbidden, "wrong auth")
		return
	}
	user := userReply.Item.UserData

	if strings.TrimSpace(req.Username) != strings.TrimSpace(user.Pseudonym) {
		writeError(w, http.StatusForbidden, "wrong auth")
		return
	}
	if !s.password.Verify(user.PasswordHash, req.PasswordHash) {
		writeError(w, http.StatusForbidden, "wrong auth")
		return
	}

	deviceID := s.resolveDevice(req.Device)

	authKeyReply := s.store.Do(store.NewAuthKeyOp{})
	if authKeyReply.Err != nil {
		writeError(w, http.StatusInternalServerError, "session allocation failed")
		return
	}

	token, err := s.auth.IssueSessionToken(authKeyReply.AuthKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token issuance failed")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{SessionToken: token, DeviceID: deviceID})
}

// resolveDevice reuses an existing Device record with the same
// name/model/os/type fingerprint rather than minting a new one on every
// login (§10 supplemented feature, grounded in the original's device
// lookup-by-structural-equality behavior).
func (s *Server) resolveDevice(f deviceFields) int {
	all := s.store.Do(store.GetAllOp{})
	for _, it := range all.Items {
		if it.Kind != models.KindDevice || it.Device == nil {
			continue
		}
		if it.Device.SameFingerprint(f.Name, f.Model, f.OS, f.Type) {
			return it.Device.ID
		}
	}

	added := s.store.Do(store.AddOp{Item: models.Item{Kind: models.KindDevice, Device: &models.Device{
		Name:    f.Name,
		Model:   f.Model,
		OS:      f.OS,
		Type:    f.Type,
		AddedOn: s.now(),
	}}})
	return added.ID.ID
}
