package store

import "github.com/pedrow21/proxima/pkg/models"

// shiftReferences is the single id-shift pass required by the DESIGN NOTES:
// "a faithful implementation must factor this as one visit_all_ids(&mut
// database, |id_ref| …) pass, not repeated ad hoc loops." Every reference
// to an id of kind into any entity in db is walked exactly once here;
// inserting a new item at position insertedAt bumps every reference
// >= insertedAt by one, so the reference keeps resolving to the same
// logical entity it did before the insert.
func shiftReferences(db *models.Database, kind models.ItemKind, insertedAt int) {
	bump := func(id int) int {
		if id >= insertedAt {
			return id + 1
		}
		return id
	}
	bumpPtr := func(id *int) {
		if id != nil && *id >= insertedAt {
			*id++
		}
	}
	bumpSet := func(set map[int]struct{}) map[int]struct{} {
		if set == nil {
			return set
		}
		out := make(map[int]struct{}, len(set))
		for id := range set {
			out[bump(id)] = struct{}{}
		}
		return out
	}

	tags := db.Tags.All()
	for i := range tags {
		if kind == models.KindTag {
			bumpPtr(tags[i].Parent)
		}
	}

	folders := db.Folders.All()
	for i := range folders {
		if kind == models.KindFolder {
			bumpPtr(folders[i].Parent)
		}
		if kind == models.KindTag {
			folders[i].Tags = bumpSet(folders[i].Tags)
		}
		if kind == models.KindAccessMode {
			folders[i].AccessModes = bumpSet(folders[i].AccessModes)
		}
	}

	files := db.Files.All()
	for i := range files {
		if kind == models.KindTag {
			files[i].Tags = bumpSet(files[i].Tags)
		}
		if kind == models.KindAccessMode {
			files[i].AccessModes = bumpSet(files[i].AccessModes)
		}
	}

	modes := db.AccessModes.All()
	for i := range modes {
		if kind == models.KindTag {
			modes[i].Tags = bumpSet(modes[i].Tags)
		}
	}

	configs := db.Configs.All()
	for i := range configs {
		if kind == models.KindTag {
			configs[i].Tags = bumpSet(configs[i].Tags)
		}
		if kind == models.KindAccessMode {
			configs[i].AccessModes = bumpSet(configs[i].AccessModes)
			for j, s := range configs[i].Settings {
				if am, ok := s.(models.AccessModeSetting); ok {
					configs[i].Settings[j] = models.AccessModeSetting{ID: bump(am.ID)}
				}
			}
		}
		for _, s := range configs[i].Settings {
			if ts, ok := s.(models.ToolSetting); ok && ts.Data != nil {
				if shifter, ok := ts.Data.(idShifter); ok {
					shifter.ShiftIDs(kind, insertedAt)
				}
			}
		}
	}

	chats := db.Chats.All()
	for i := range chats {
		if kind == models.KindConfig {
			bumpPtr(chats[i].ConfigID)
		}
		if kind == models.KindDevice {
			chats[i].OriginDevice = bump(chats[i].OriginDevice)
		}
		if kind == models.KindTag {
			chats[i].Tags = bumpSet(chats[i].Tags)
		}
		if kind == models.KindAccessMode {
			chats[i].AccessModes = bumpSet(chats[i].AccessModes)
		}
	}
}

// idShifter is implemented by ToolState values that themselves hold id
// references (the Agent tool's registry holds Chat ids). It is checked
// via type assertion so pkg/models and internal/store stay decoupled
// from individual tool state representations in internal/tooling.
type idShifter interface {
	ShiftIDs(kind models.ItemKind, insertedAt int)
}
