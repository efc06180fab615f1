package store

import "github.com/pedrow21/proxima/pkg/models"

// InfoKind selects the variant of the Info operation.
type InfoKind string

const (
	InfoNumbersOfItems InfoKind = "numbers_of_items"
	InfoLatestItems    InfoKind = "latest_items"
	InfoUnknownUpdates InfoKind = "unknown_updates"
)

// Request is one database-actor operation plus the reply channel the
// actor loop sends exactly one Reply to.
type Request struct {
	Op    Op
	Reply chan Reply
}

// Op is a tagged union over every operation in the database actor's
// table: Get, GetAll, Add, Update, Info, NewAuthKey, VerifyAuthKey,
// GetAgentPrompt, Save.
type Op interface{ isOp() }

// GetOp fetches one item by id.
type GetOp struct{ ID models.ItemID }

// GetAllOp returns a full snapshot of the database.
type GetAllOp struct{}

// AddOp inserts item as a new entity at the next dense id for its kind.
// AuthKey identifies the originating session, excluded from the peer
// broadcast this Add triggers.
type AddOp struct {
	Item    models.Item
	AuthKey uint64
}

// UpdateOp overwrites or inserts-at-id, per the timestamp-identity rule.
type UpdateOp struct {
	Item    models.Item
	AuthKey uint64
}

// InfoOp services Info(NumbersOfItems), Info(LatestItems), and
// Info(UnknownUpdates{AuthKey}).
type InfoOp struct {
	Kind    InfoKind
	AuthKey uint64 // only meaningful for InfoUnknownUpdates
}

// NewAuthKeyOp registers a fresh session with an empty pending-updates
// queue and returns its key.
type NewAuthKeyOp struct{}

// VerifyAuthKeyOp checks whether Key names a registered session.
type VerifyAuthKeyOp struct{ Key uint64 }

// GetAgentPromptOp synthesizes the system+user context for a
// description-or-tag-generation subprompt (§10 supplemented feature).
type GetAgentPromptOp struct{ Descriptor string }

// SaveOp triggers a snapshot write if the database is dirty.
type SaveOp struct{}

func (GetOp) isOp()            {}
func (GetAllOp) isOp()         {}
func (AddOp) isOp()            {}
func (UpdateOp) isOp()         {}
func (InfoOp) isOp()           {}
func (NewAuthKeyOp) isOp()     {}
func (VerifyAuthKeyOp) isOp()  {}
func (GetAgentPromptOp) isOp() {}
func (SaveOp) isOp()           {}

// Reply is the single reply type every operation sends back exactly
// once; which fields are meaningful is determined by the Op that
// produced it.
type Reply struct {
	Err error

	Item  *models.Item  // Get
	Items []models.Item // GetAll
	ID    models.ItemID // Add

	Counts  map[models.ItemKind]int         // Info(NumbersOfItems)
	Latest  map[models.ItemKind]models.Item // Info(LatestItems)
	Updates []models.Item                   // Info(UnknownUpdates)

	AuthKey  uint64 // NewAuthKey
	Verified bool   // VerifyAuthKey

	Prompt models.Context // GetAgentPrompt

	Saved bool // Save, and an Add/Update acknowledgement
}

// reply sends r on ch; handle uses it to answer every request.
func reply(ch chan Reply, r Reply) {
	ch <- r
}
