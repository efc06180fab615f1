package endpoint

import (
	"fmt"

	"github.com/pedrow21/proxima/internal/store"
	"github.com/pedrow21/proxima/pkg/models"
)

// storeClient adapts the Database Actor's message-passing API (Do(op)
// Reply) to the narrow subagent.Store interface the Agent tool needs,
// so internal/tooling/subagent never depends on internal/store directly.
type storeClient struct {
	db *store.Actor
}

func (s storeClient) AddChat(chat models.Chat) (models.ChatID, error) {
	reply := s.db.Do(store.AddOp{Item: models.Item{Kind: models.KindChat, Chat: &chat}})
	if reply.Err != nil {
		return 0, reply.Err
	}
	return reply.ID.ID, nil
}

func (s storeClient) UpdateChat(chat models.Chat) error {
	reply := s.db.Do(store.UpdateOp{Item: models.Item{Kind: models.KindChat, Chat: &chat}})
	return reply.Err
}

func (s storeClient) GetChat(id models.ChatID) (models.Chat, error) {
	reply := s.db.Do(store.GetOp{ID: models.ItemID{Kind: models.KindChat, ID: id}})
	if reply.Err != nil {
		return models.Chat{}, reply.Err
	}
	if reply.Item == nil || reply.Item.Chat == nil {
		return models.Chat{}, fmt.Errorf("endpoint: chat %d not found", id)
	}
	return *reply.Item.Chat, nil
}
