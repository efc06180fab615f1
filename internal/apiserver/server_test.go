package apiserver

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pedrow21/proxima/internal/auth"
	"github.com/pedrow21/proxima/internal/backend"
	"github.com/pedrow21/proxima/internal/backend/scripted"
	"github.com/pedrow21/proxima/internal/endpoint"
	"github.com/pedrow21/proxima/internal/store"
	"github.com/pedrow21/proxima/pkg/models"
)

func hashPassword(pw string) string {
	sum := sha256.Sum256([]byte(pw))
	return hex.EncodeToString(sum[:])
}

func newTestServer(t *testing.T, be backend.Adapter) (*Server, *store.Actor) {
	t.Helper()
	snap, err := store.NewSnapshotter(t.TempDir())
	if err != nil {
		t.Fatalf("NewSnapshotter: %v", err)
	}
	passwordHash := hashPassword("correct horse")
	db := models.NewDatabase("alice", passwordHash, 1000)
	st := store.NewActor(db, snap, slog.Default())
	go st.Run()
	t.Cleanup(st.Close)

	ep := endpoint.NewActor(endpoint.Config{
		NewAdapter: func() (backend.Adapter, error) { return be, nil },
		Store:      st,
	})
	go ep.Run()
	t.Cleanup(ep.Close)

	srv := NewServer(Config{
		Store:    st,
		Endpoint: ep,
		Auth:     auth.NewService("test-secret", time.Hour),
		MediaDir: t.TempDir(),
	})
	return srv, st
}

func TestHandleHomeReportsOK(t *testing.T) {
	srv, _ := newTestServer(t, scripted.New(scripted.Turn{Text: "<response>hi</response>"}))
	req := httptest.NewRequest(http.MethodGet, "/home", nil)
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
}

func TestHandleAuthSucceedsAndMintsSession(t *testing.T) {
	srv, _ := newTestServer(t, scripted.New(scripted.Turn{Text: "<response>hi</response>"}))

	body, _ := json.Marshal(authRequest{
		Username:     "alice",
		PasswordHash: hashPassword("correct horse"),
		Device:       deviceFields{Name: "phone", Type: models.DeviceSmartphone, OS: "ios", Model: "15"},
	})
	req := httptest.NewRequest(http.MethodPost, "/auth", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp authResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SessionToken == "" {
		t.Fatal("expected a non-empty session token")
	}
	if resp.DeviceID != 0 {
		t.Fatalf("want first device id 0, got %d", resp.DeviceID)
	}
}

func TestHandleAuthRejectsWrongPassword(t *testing.T) {
	srv, _ := newTestServer(t, scripted.New(scripted.Turn{Text: "<response>hi</response>"}))

	body, _ := json.Marshal(authRequest{
		Username:     "alice",
		PasswordHash: hashPassword("wrong password"),
		Device:       deviceFields{Name: "phone"},
	})
	req := httptest.NewRequest(http.MethodPost, "/auth", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("want 403, got %d", rec.Code)
	}
}

func TestHandleAuthReusesDeviceFingerprint(t *testing.T) {
	srv, st := newTestServer(t, scripted.New(scripted.Turn{Text: "<response>hi</response>"}))
	device := deviceFields{Name: "phone", Type: models.DeviceSmartphone, OS: "ios", Model: "15"}

	for i := 0; i < 2; i++ {
		body, _ := json.Marshal(authRequest{Username: "alice", PasswordHash: hashPassword("correct horse"), Device: device})
		req := httptest.NewRequest(http.MethodPost, "/auth", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		srv.Mux().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("login %d: want 200, got %d", i, rec.Code)
		}
	}

	counts := st.Do(store.InfoOp{Kind: store.InfoNumbersOfItems})
	if counts.Counts[models.KindDevice] != 1 {
		t.Fatalf("want exactly one device after two logins from the same fingerprint, got %d", counts.Counts[models.KindDevice])
	}
}

func mintAuthKey(t *testing.T, st *store.Actor) uint64 {
	t.Helper()
	reply := st.Do(store.NewAuthKeyOp{})
	if reply.Err != nil {
		t.Fatalf("NewAuthKeyOp: %v", reply.Err)
	}
	return reply.AuthKey
}

func TestHandleDBRoundTripsInfo(t *testing.T) {
	srv, st := newTestServer(t, scripted.New(scripted.Turn{Text: "<response>hi</response>"}))
	key := mintAuthKey(t, st)

	body, _ := json.Marshal(dbRequest{AuthKey: key, Request: dbOpRequest{Kind: "info", InfoKind: store.InfoNumbersOfItems}})
	req := httptest.NewRequest(http.MethodPost, "/db", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp dbReply
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Err != "" {
		t.Fatalf("unexpected error: %s", resp.Err)
	}
	if resp.Counts == nil {
		t.Fatal("expected non-nil counts map")
	}
}

func TestHandleDBRejectsUnknownAuthKey(t *testing.T) {
	srv, _ := newTestServer(t, scripted.New(scripted.Turn{Text: "<response>hi</response>"}))

	body, _ := json.Marshal(dbRequest{AuthKey: 999999, Request: dbOpRequest{Kind: "info", InfoKind: store.InfoNumbersOfItems}})
	req := httptest.NewRequest(http.MethodPost, "/db", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("want 403, got %d", rec.Code)
	}
}

func TestHandleAINonStreamingReturnsBlock(t *testing.T) {
	srv, st := newTestServer(t, scripted.New(scripted.Turn{Text: "<response>hi</response>"}))
	key := mintAuthKey(t, st)

	body, _ := json.Marshal(aiRequest{
		AuthKey: key,
		Request: aiOpRequest{
			Context:     models.NewContext(models.NewPart(models.PositionUser, models.TextData("hello"))),
			SessionType: models.SessionChat,
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/ai", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp aiReplyWire
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Block == nil {
		t.Fatal("expected a Block result for a tool-less request")
	}
	if resp.Block.ConcatenatedText() != "<response>hi</response>" {
		t.Fatalf("unexpected block text: %q", resp.Block.ConcatenatedText())
	}
}

func TestHandleAIStreamingFramesEvents(t *testing.T) {
	srv, st := newTestServer(t, scripted.New(scripted.Turn{Tokens: []string{"<response>", "ok", "</response>"}}))
	key := mintAuthKey(t, st)

	body, _ := json.Marshal(aiRequest{
		AuthKey: key,
		Request: aiOpRequest{
			Context:     models.NewContext(models.NewPart(models.PositionUser, models.TextData("hello"))),
			SessionType: models.SessionChat,
			Streaming:   true,
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/ai", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	dec := json.NewDecoder(rec.Body)
	var joined string
	for {
		var ev streamEventWire
		if err := dec.Decode(&ev); err != nil {
			break
		}
		joined += ev.Data.Text
	}
	if joined != "<response>ok</response>" {
		t.Fatalf("want joined stream %q, got %q", "<response>ok</response>", joined)
	}
}

func TestHandleMediaServesFileContents(t *testing.T) {
	srv, st := newTestServer(t, scripted.New(scripted.Turn{Text: "<response>hi</response>"}))

	mediaPath := "greeting.txt"
	if err := writeTestFile(t, srv.mediaDir, mediaPath, "hello media"); err != nil {
		t.Fatalf("writeTestFile: %v", err)
	}
	added := st.Do(store.AddOp{Item: models.Item{Kind: models.KindFile, File: &models.File{Path: mediaPath}}})
	if added.Err != nil {
		t.Fatalf("AddOp: %v", added.Err)
	}

	req := httptest.NewRequest(http.MethodGet, "/media/"+itoa(added.ID.ID), nil)
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	if rec.Body.String() != "hello media" {
		t.Fatalf("unexpected media body: %q", rec.Body.String())
	}
}

func TestHandleMediaRejectsUnknownID(t *testing.T) {
	srv, _ := newTestServer(t, scripted.New(scripted.Turn{Text: "<response>hi</response>"}))
	req := httptest.NewRequest(http.MethodGet, "/media/999", nil)
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", rec.Code)
	}
}
