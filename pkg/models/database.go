package models

import "github.com/pedrow21/proxima/internal/store/idarena"

// ItemKind names one of the database's top-level dense-id collections.
// It is used both as a discriminant on DatabaseItem/DatabaseItemID and as
// the argument to Info(NumbersOfItems)/Info(LatestItems).
type ItemKind string

const (
	KindDevice     ItemKind = "device"
	KindChat       ItemKind = "chat"
	KindTag        ItemKind = "tag"
	KindAccessMode ItemKind = "access_mode"
	KindConfig     ItemKind = "config"
	KindFile       ItemKind = "file"
	KindFolder     ItemKind = "folder"
	KindUserData   ItemKind = "user_data"
)

// ItemID identifies one stored entity: a kind plus its dense index. For
// the singleton UserData kind the index is ignored.
type ItemID struct {
	Kind ItemKind `json:"kind"`
	ID   int      `json:"id"`
}

// Item is a tagged union over every entity type the database can
// Get/Add/Update, mirroring the original DatabaseItem enum. Exactly one
// field is populated, selected by Kind.
type Item struct {
	Kind       ItemKind           `json:"kind"`
	Device     *Device            `json:"device,omitempty"`
	Chat       *Chat              `json:"chat,omitempty"`
	Tag        *Tag               `json:"tag,omitempty"`
	AccessMode *AccessMode        `json:"access_mode,omitempty"`
	Config     *ChatConfiguration `json:"config,omitempty"`
	File       *File              `json:"file,omitempty"`
	Folder     *Folder            `json:"folder,omitempty"`
	UserData   *UserData          `json:"user_data,omitempty"`
}

// ID returns the entity's id field within its own kind, or -1 for the
// singleton UserData kind.
func (it Item) ID() int {
	switch it.Kind {
	case KindDevice:
		return it.Device.ID
	case KindChat:
		return it.Chat.ID
	case KindTag:
		return it.Tag.ID
	case KindAccessMode:
		return it.AccessMode.ID
	case KindConfig:
		return it.Config.ID
	case KindFile:
		return it.File.ID
	case KindFolder:
		return it.Folder.ID
	default:
		return -1
	}
}

// Timestamp returns the entity's identity timestamp — the field compared
// by Update to distinguish an overwrite from an insert-at-id (spec.md
// §3/§4.2, Open Question #2). Entities with no natural creation timestamp
// (AccessMode, UserData) use AddedOn/LastUpdated respectively.
func (it Item) Timestamp() int64 {
	switch it.Kind {
	case KindDevice:
		return it.Device.AddedOn
	case KindChat:
		return it.Chat.StartDate
	case KindTag:
		return it.Tag.CreatedAt
	case KindAccessMode:
		return it.AccessMode.AddedOn
	case KindConfig:
		return it.Config.CreatedOn
	case KindUserData:
		return it.UserData.LastUpdated
	default:
		return 0
	}
}

// Database is the single root entity arena, owned exclusively by the
// store actor. Every collection is an idarena.Arena[T], preserving "every
// id field equals the entity's position in its container" by
// construction.
type Database struct {
	Devices     idarena.Arena[Device]
	Chats       idarena.Arena[Chat]
	Tags        idarena.Arena[Tag]
	AccessModes idarena.Arena[AccessMode]
	Configs     idarena.Arena[ChatConfiguration]
	Files       idarena.Arena[File]
	Folders     idarena.Arena[Folder]
	UserData    UserData
}

// NewDatabase seeds a fresh database for a newly-initialized user: the
// singleton user record and access mode 0 ("global").
func NewDatabase(pseudonym, passwordHash string, now int64) Database {
	db := Database{}
	db.AccessModes = idarena.New(NewGlobalAccessMode(now))
	db.UserData = UserData{
		Pseudonym:    pseudonym,
		PasswordHash: passwordHash,
		LastUpdated:  now,
	}
	return db
}

// Clone returns a deep copy of the whole database, used by the store
// actor's Save operation to hand a snapshot to a background writer
// without aliasing anything the actor goroutine keeps mutating.
func (db Database) Clone() Database {
	return Database{
		Devices:     db.Devices.Clone(Device.Clone),
		Chats:       db.Chats.Clone(Chat.Clone),
		Tags:        db.Tags.Clone(Tag.Clone),
		AccessModes: db.AccessModes.Clone(AccessMode.Clone),
		Configs:     db.Configs.Clone(ChatConfiguration.Clone),
		Files:       db.Files.Clone(File.Clone),
		Folders:     db.Folders.Clone(Folder.Clone),
		UserData:    db.UserData.Clone(),
	}
}
