// Package store implements the Database Actor: the single owner of
// pkg/models.Database, driven by a two-level priority mailbox exactly as
// described by spec.md §4.2. External callers never see the live
// database; every reply carries an owned copy.
package store

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pedrow21/proxima/internal/mailbox"
	"github.com/pedrow21/proxima/internal/store/idarena"
	"github.com/pedrow21/proxima/pkg/models"
)

// session is the per-auth-key bookkeeping the actor keeps: a FIFO of
// items added or updated by other sessions since this session's last
// Info(UnknownUpdates) drain.
type session struct {
	pending []models.Item
}

// Actor owns the database exclusively and services requests off its
// mailbox on a single goroutine.
type Actor struct {
	mb       *mailbox.Mailbox[Request]
	db       models.Database
	sessions map[uint64]*session
	dirty    bool
	snapshot *Snapshotter
	log      *slog.Logger
}

// NewActor constructs an Actor over an existing database (typically
// loaded from snapshot.Load at startup) with a fresh mailbox.
func NewActor(db models.Database, snapshot *Snapshotter, log *slog.Logger) *Actor {
	if log == nil {
		log = slog.Default()
	}
	return &Actor{
		mb:       mailbox.New[Request](),
		db:       db,
		sessions: map[uint64]*session{},
		snapshot: snapshot,
		log:      log,
	}
}

// Mailbox exposes the actor's request queue to callers (apiserver,
// internal/endpoint) that need to send operations in.
func (a *Actor) Mailbox() *mailbox.Mailbox[Request] { return a.mb }

// Do sends op on the normal queue and blocks for its reply. Callers that
// need priority treatment (none currently do — the database actor has no
// distinguished "urgent" request kind of its own) use SendPriority on the
// mailbox directly.
func (a *Actor) Do(op Op) Reply {
	ch := make(chan Reply, 1)
	a.mb.SendNormal(Request{Op: op, Reply: ch})
	return <-ch
}

// Run drives the actor loop until Close is called on its mailbox and it
// drains. Intended to be called in its own goroutine by cmd/proxima.
// Cancellation is observed through the mailbox, not a context, matching
// the actor/channel shutdown idiom the priority mailbox already uses.
func (a *Actor) Run() {
	a.mb.Run(a.handle)
}

// Close stops the actor loop once its mailbox drains, flushing a final
// snapshot first if the database is dirty (the actor's own drop
// guarantee per the DESIGN NOTES).
func (a *Actor) Close() {
	if a.dirty && a.snapshot != nil {
		if err := a.snapshot.Write(a.db.Clone()); err != nil {
			a.log.Error("final snapshot write failed", "error", err)
		} else {
			a.dirty = false
		}
	}
	a.mb.Close()
}

func (a *Actor) handle(req Request) {
	switch op := req.Op.(type) {
	case GetOp:
		reply(req.Reply, a.handleGet(op))
	case GetAllOp:
		reply(req.Reply, a.handleGetAll())
	case AddOp:
		reply(req.Reply, a.handleAdd(op))
	case UpdateOp:
		reply(req.Reply, a.handleUpdate(op))
	case InfoOp:
		reply(req.Reply, a.handleInfo(op))
	case NewAuthKeyOp:
		reply(req.Reply, a.handleNewAuthKey())
	case VerifyAuthKeyOp:
		reply(req.Reply, a.handleVerifyAuthKey(op))
	case GetAgentPromptOp:
		reply(req.Reply, Reply{Prompt: a.AgentPrompt(op.Descriptor)})
	case SaveOp:
		reply(req.Reply, a.handleSave())
	default:
		reply(req.Reply, Reply{Err: fmt.Errorf("store: unknown op %T", req.Op)})
	}
}

// itemAt builds a models.Item snapshot of the entity at id within kind,
// used by Get and the post-mutation broadcast payload.
func (a *Actor) itemAt(kind models.ItemKind, id int) (models.Item, bool) {
	switch kind {
	case models.KindDevice:
		d, ok := a.db.Devices.Get(id)
		return models.Item{Kind: kind, Device: &d}, ok
	case models.KindChat:
		c, ok := a.db.Chats.Get(id)
		return models.Item{Kind: kind, Chat: &c}, ok
	case models.KindTag:
		t, ok := a.db.Tags.Get(id)
		return models.Item{Kind: kind, Tag: &t}, ok
	case models.KindAccessMode:
		m, ok := a.db.AccessModes.Get(id)
		return models.Item{Kind: kind, AccessMode: &m}, ok
	case models.KindConfig:
		c, ok := a.db.Configs.Get(id)
		return models.Item{Kind: kind, Config: &c}, ok
	case models.KindFile:
		f, ok := a.db.Files.Get(id)
		return models.Item{Kind: kind, File: &f}, ok
	case models.KindFolder:
		f, ok := a.db.Folders.Get(id)
		return models.Item{Kind: kind, Folder: &f}, ok
	case models.KindUserData:
		u := a.db.UserData
		return models.Item{Kind: kind, UserData: &u}, true
	default:
		return models.Item{}, false
	}
}

func (a *Actor) handleGet(op GetOp) Reply {
	it, ok := a.itemAt(op.ID.Kind, op.ID.ID)
	if !ok {
		return Reply{Err: fmt.Errorf("get: no %s with id %d", op.ID.Kind, op.ID.ID)}
	}
	return Reply{Item: &it}
}

func (a *Actor) handleGetAll() Reply {
	var all []models.Item
	for _, d := range a.db.Devices.All() {
		d := d
		all = append(all, models.Item{Kind: models.KindDevice, Device: &d})
	}
	for _, c := range a.db.Chats.All() {
		c := c
		all = append(all, models.Item{Kind: models.KindChat, Chat: &c})
	}
	for _, t := range a.db.Tags.All() {
		t := t
		all = append(all, models.Item{Kind: models.KindTag, Tag: &t})
	}
	for _, m := range a.db.AccessModes.All() {
		m := m
		all = append(all, models.Item{Kind: models.KindAccessMode, AccessMode: &m})
	}
	for _, c := range a.db.Configs.All() {
		c := c
		all = append(all, models.Item{Kind: models.KindConfig, Config: &c})
	}
	for _, f := range a.db.Files.All() {
		f := f
		all = append(all, models.Item{Kind: models.KindFile, File: &f})
	}
	for _, f := range a.db.Folders.All() {
		f := f
		all = append(all, models.Item{Kind: models.KindFolder, Folder: &f})
	}
	user := a.db.UserData
	all = append(all, models.Item{Kind: models.KindUserData, UserData: &user})
	return Reply{Items: all}
}

func (a *Actor) handleAdd(op AddOp) Reply {
	it := op.Item
	var id int
	switch it.Kind {
	case models.KindDevice:
		if it.Device == nil {
			return Reply{Err: errors.New("add: nil device")}
		}
		id = a.db.Devices.Append(*it.Device, func(d *models.Device, i int) { d.ID = i })
	case models.KindChat:
		if it.Chat == nil {
			return Reply{Err: errors.New("add: nil chat")}
		}
		c := it.Chat.Clone()
		if c.AccessModes == nil {
			c.AccessModes = map[int]struct{}{}
		}
		c.AccessModes[models.GlobalAccessModeID] = struct{}{}
		id = a.db.Chats.Append(c, func(x *models.Chat, i int) { x.ID = i })
	case models.KindTag:
		if it.Tag == nil {
			return Reply{Err: errors.New("add: nil tag")}
		}
		id = a.db.Tags.Append(*it.Tag, func(x *models.Tag, i int) { x.ID = i })
		a.addTagToGlobalMode(id)
	case models.KindAccessMode:
		if it.AccessMode == nil {
			return Reply{Err: errors.New("add: nil access mode")}
		}
		id = a.db.AccessModes.Append(*it.AccessMode, func(x *models.AccessMode, i int) { x.ID = i })
	case models.KindConfig:
		if it.Config == nil {
			return Reply{Err: errors.New("add: nil config")}
		}
		cfg := it.Config.Clone()
		if cfg.AccessModes == nil {
			cfg.AccessModes = map[int]struct{}{}
		}
		cfg.AccessModes[models.GlobalAccessModeID] = struct{}{}
		id = a.db.Configs.Append(cfg, func(x *models.ChatConfiguration, i int) { x.ID = i })
	case models.KindFile:
		if it.File == nil {
			return Reply{Err: errors.New("add: nil file")}
		}
		id = a.db.Files.Append(*it.File, func(x *models.File, i int) { x.ID = i })
	case models.KindFolder:
		if it.Folder == nil {
			return Reply{Err: errors.New("add: nil folder")}
		}
		id = a.db.Folders.Append(*it.Folder, func(x *models.Folder, i int) { x.ID = i })
	default:
		return Reply{Err: fmt.Errorf("add: unsupported kind %q", it.Kind)}
	}

	a.dirty = true
	added, _ := a.itemAt(it.Kind, id)
	a.broadcast(added, op.AuthKey)
	return Reply{ID: models.ItemID{Kind: it.Kind, ID: id}, Saved: true}
}

// addTagToGlobalMode maintains the invariant that access mode 0 contains
// every tag-id ever created.
func (a *Actor) addTagToGlobalMode(tagID int) {
	modes := a.db.AccessModes.All()
	if len(modes) == 0 {
		return
	}
	if modes[0].Tags == nil {
		modes[0].Tags = map[int]struct{}{}
	}
	modes[0].Tags[tagID] = struct{}{}
}

// AddTagWithParentName creates a tag, auto-creating a stub parent by name
// if parentName is set and no tag by that name yet exists — the §10
// supplemented feature grounded in original_source's
// Tags::add_tag_with_parent_name.
func (a *Actor) AddTagWithParentName(name, description string, parentName *string, now int64, authKey uint64) models.ItemID {
	var parentID *int
	if parentName != nil {
		if id, ok := models.FindTagByName(a.db.Tags.All(), *parentName); ok {
			parentID = &id
		} else {
			stubID := a.db.Tags.Append(models.Tag{
				Name:        *parentName,
				Description: "Missing description",
				CreatedAt:   now,
			}, func(t *models.Tag, i int) { t.ID = i })
			a.addTagToGlobalMode(stubID)
			a.dirty = true
			added, _ := a.itemAt(models.KindTag, stubID)
			a.broadcast(added, authKey)
			parentID = &stubID
		}
	}
	id := a.db.Tags.Append(models.Tag{
		Name:        name,
		Description: description,
		Parent:      parentID,
		CreatedAt:   now,
	}, func(t *models.Tag, i int) { t.ID = i })
	a.addTagToGlobalMode(id)
	a.dirty = true
	added, _ := a.itemAt(models.KindTag, id)
	a.broadcast(added, authKey)
	return models.ItemID{Kind: models.KindTag, ID: id}
}

func (a *Actor) handleUpdate(op UpdateOp) Reply {
	it := op.Item
	k := it.ID()
	var err error
	switch it.Kind {
	case models.KindDevice:
		err = upsert(&a.db, &a.db.Devices, it.Kind, k, *it.Device,
			func(d models.Device) int64 { return d.AddedOn },
			func(d *models.Device, i int) { d.ID = i })
	case models.KindChat:
		err = upsert(&a.db, &a.db.Chats, it.Kind, k, *it.Chat,
			func(c models.Chat) int64 { return c.StartDate },
			func(c *models.Chat, i int) { c.ID = i })
	case models.KindTag:
		err = upsert(&a.db, &a.db.Tags, it.Kind, k, *it.Tag,
			func(t models.Tag) int64 { return t.CreatedAt },
			func(t *models.Tag, i int) { t.ID = i })
	case models.KindAccessMode:
		err = upsert(&a.db, &a.db.AccessModes, it.Kind, k, *it.AccessMode,
			func(m models.AccessMode) int64 { return m.AddedOn },
			func(m *models.AccessMode, i int) { m.ID = i })
	case models.KindConfig:
		err = upsert(&a.db, &a.db.Configs, it.Kind, k, *it.Config,
			func(c models.ChatConfiguration) int64 { return c.CreatedOn },
			func(c *models.ChatConfiguration, i int) { c.ID = i })
	case models.KindFile:
		// File carries no creation timestamp (it is an opaque non-goal
		// entity); every Update on a File overwrites in place by id.
		if !a.db.Files.Overwrite(k, *it.File) {
			err = fmt.Errorf("update: id %d out of range for file", k)
		}
	case models.KindFolder:
		if !a.db.Folders.Overwrite(k, *it.Folder) {
			err = fmt.Errorf("update: id %d out of range for folder", k)
		}
	case models.KindUserData:
		a.db.UserData = *it.UserData
	default:
		err = fmt.Errorf("update: unsupported kind %q", it.Kind)
	}
	if err != nil {
		return Reply{Err: err}
	}

	a.dirty = true
	updated, _ := a.itemAt(it.Kind, k)
	a.broadcast(updated, op.AuthKey)
	return Reply{Saved: true}
}

// upsert implements the overwrite-vs-insert-at-id rule: if an item
// already occupies k and its identity timestamp matches item's, overwrite
// in place; otherwise shift every cross-reference at or above k and
// insert item there. Grounded in spec.md §3's Ownership paragraph and
// Open Question #2 (the timestamp is the identity key).
func upsert[T any](db *models.Database, arena *idarena.Arena[T], kind models.ItemKind, k int, item T, ts func(T) int64, setID func(*T, int)) error {
	if k < 0 || k > arena.Len() {
		return fmt.Errorf("update: id %d out of range for %s", k, kind)
	}
	if existing, ok := arena.Get(k); ok && ts(existing) == ts(item) {
		arena.Overwrite(k, item)
		return nil
	}
	shiftReferences(db, kind, k)
	arena.InsertAt(k, item, setID)
	return nil
}

func (a *Actor) handleInfo(op InfoOp) Reply {
	switch op.Kind {
	case InfoNumbersOfItems:
		return Reply{Counts: map[models.ItemKind]int{
			models.KindDevice:     a.db.Devices.Len(),
			models.KindChat:       a.db.Chats.Len(),
			models.KindTag:        a.db.Tags.Len(),
			models.KindAccessMode: a.db.AccessModes.Len(),
			models.KindConfig:     a.db.Configs.Len(),
			models.KindFile:       a.db.Files.Len(),
			models.KindFolder:     a.db.Folders.Len(),
		}}
	case InfoLatestItems:
		latest := map[models.ItemKind]models.Item{}
		if d, ok := a.db.Devices.Last(); ok {
			latest[models.KindDevice] = models.Item{Kind: models.KindDevice, Device: &d}
		}
		if c, ok := a.db.Chats.Last(); ok {
			latest[models.KindChat] = models.Item{Kind: models.KindChat, Chat: &c}
		}
		if t, ok := a.db.Tags.Last(); ok {
			latest[models.KindTag] = models.Item{Kind: models.KindTag, Tag: &t}
		}
		if m, ok := a.db.AccessModes.Last(); ok {
			latest[models.KindAccessMode] = models.Item{Kind: models.KindAccessMode, AccessMode: &m}
		}
		if c, ok := a.db.Configs.Last(); ok {
			latest[models.KindConfig] = models.Item{Kind: models.KindConfig, Config: &c}
		}
		if f, ok := a.db.Files.Last(); ok {
			latest[models.KindFile] = models.Item{Kind: models.KindFile, File: &f}
		}
		if f, ok := a.db.Folders.Last(); ok {
			latest[models.KindFolder] = models.Item{Kind: models.KindFolder, Folder: &f}
		}
		return Reply{Latest: latest}
	case InfoUnknownUpdates:
		s, ok := a.sessions[op.AuthKey]
		if !ok {
			return Reply{Err: fmt.Errorf("info: unknown auth key")}
		}
		drained := s.pending
		s.pending = nil
		return Reply{Updates: drained}
	default:
		return Reply{Err: fmt.Errorf("info: unknown kind %q", op.Kind)}
	}
}

func (a *Actor) handleNewAuthKey() Reply {
	var key uint64
	for {
		key = randomUint64()
		if _, exists := a.sessions[key]; !exists {
			break
		}
	}
	a.sessions[key] = &session{}
	return Reply{AuthKey: key}
}

func (a *Actor) handleVerifyAuthKey(op VerifyAuthKeyOp) Reply {
	_, ok := a.sessions[op.Key]
	return Reply{Verified: ok}
}

func (a *Actor) handleSave() Reply {
	if !a.dirty || a.snapshot == nil {
		return Reply{Saved: true}
	}
	snap := a.db.Clone()
	done := make(chan error, 1)
	go func() { done <- a.snapshot.Write(snap) }()
	if err := <-done; err != nil {
		a.log.Error("snapshot write failed", "error", err)
		return Reply{Err: err}
	}
	a.dirty = false
	return Reply{Saved: true}
}

// broadcast appends item to every session's pending-updates queue except
// originator's, atomically with the mutation that produced it (same actor
// step — the actor has no concurrent mutator, so this is trivially
// atomic).
func (a *Actor) broadcast(item models.Item, originator uint64) {
	for key, s := range a.sessions {
		if key == originator {
			continue
		}
		s.pending = append(s.pending, item)
	}
}

func randomUint64() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing indicates a broken host RNG; there is no
		// sane fallback for a security-sensitive session key.
		panic("store: crypto/rand unavailable: " + err.Error())
	}
	return binary.BigEndian.Uint64(buf[:])
}

// PeriodicSaver posts SaveOp to an Actor on a fixed cadence via a
// robfig/cron scheduler, matching spec.md §5's 60s Save interval. The
// periodic saver ignores individual save failures (logs, continues) per
// spec.md §7's propagation policy.
type PeriodicSaver struct {
	c *cron.Cron
}

// StartPeriodicSave schedules a Save request against a every interval and
// starts the underlying cron scheduler. Call Stop to cancel it at
// shutdown.
func StartPeriodicSave(a *Actor, interval time.Duration) *PeriodicSaver {
	c := cron.New()
	spec := fmt.Sprintf("@every %s", interval)
	if _, err := c.AddFunc(spec, func() {
		if r := a.Do(SaveOp{}); r.Err != nil {
			a.log.Warn("periodic save failed", "error", r.Err)
		}
	}); err != nil {
		// interval is always a compile-time-ish constant from config; a
		// parse failure here is a programmer error, not client input.
		panic("store: invalid periodic save interval: " + err.Error())
	}
	c.Start()
	return &PeriodicSaver{c: c}
}

// Stop cancels the periodic saver and waits for any in-flight run to
// finish.
func (p *PeriodicSaver) Stop() {
	<-p.c.Stop().Done()
}
