package apiserver

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pedrow21/proxima/internal/store"
	"github.com/pedrow21/proxima/pkg/models"
)

// handleMedia implements GET /media/{id}: a static media file lookup keyed
// by the File entity's id, never by client-supplied path (media blob
// hashing/storage layout is explicitly out of scope; this only resolves
// the File record's own Path field under the configured media root).
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid media id")
		return
	}

	reply := s.store.Do(store.GetOp{ID: models.ItemID{Kind: models.KindFile, ID: id}})
	if reply.Err != nil || reply.Item == nil || reply.Item.File == nil {
		writeError(w, http.StatusNotFound, "media not found")
		return
	}

	full := filepath.Join(s.mediaDir, filepath.Clean("/"+reply.Item.File.Path))
	if !strings.HasPrefix(full, filepath.Clean(s.mediaDir)+string(filepath.Separator)) {
		writeError(w, http.StatusNotFound, "media not found")
		return
	}

	http.ServeFile(w, r, full)
}
