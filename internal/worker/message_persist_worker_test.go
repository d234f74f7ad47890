package worker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsapp-pdf-assistant/internal/model"
	"whatsapp-pdf-assistant/internal/platform/logger"
	"whatsapp-pdf-assistant/internal/repository"
	"whatsapp-pdf-assistant/internal/testutil"
)

func TestPersistStoresValidEntries(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewMessageRepository(db)
	w := NewMessagePersistWorker(nil, repo, "q", logger.NewNop())
	ctx := context.Background()

	body, err := json.Marshal(model.Message{ID: 99, UserID: 1, Direction: model.DirectionInbound, Content: "/list"})
	require.NoError(t, err)
	require.NoError(t, w.persist(ctx, body))

	msgs, err := repo.ListByUserID(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "/list", msgs[0].Content)
}

func TestPersistRejectsMalformed(t *testing.T) {
	db := testutil.NewDB(t)
	w := NewMessagePersistWorker(nil, repository.NewMessageRepository(db), "q", logger.NewNop())
	ctx := context.Background()

	assert.ErrorIs(t, w.persist(ctx, []byte("{not json")), errMalformed)

	body, _ := json.Marshal(model.Message{UserID: 1, Direction: "sideways", Content: "x"})
	assert.ErrorIs(t, w.persist(ctx, body), errMalformed)

	body, _ = json.Marshal(model.Message{Direction: model.DirectionOutbound, Content: "x"})
	assert.ErrorIs(t, w.persist(ctx, body), errMalformed)
}
