package rest_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// questDurMs is the duration of the shortest seeded quest ("quest-1").
const questDurMs = int64(180_000)

func TestQuests_ListCatalog(t *testing.T) {
	e := newEnv(t)
	token := e.login(t, "browser")

	w := e.do(http.MethodGet, "/api/quests", nil, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	quests := decode(t, w)["quests"].([]interface{})
	require.NotEmpty(t, quests)
	first := quests[0].(map[string]interface{})
	assert.Equal(t, "quest-1", first["id"])
	assert.NotEmpty(t, first["title"])
	assert.Equal(t, float64(3), first["duration_minutes"])
}

func TestQuests_CurrentEmptySlot(t *testing.T) {
	e := newEnv(t)
	token := e.login(t, "idle")

	w := e.do(http.MethodGet, "/api/quests/current", nil, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "none", decode(t, w)["phase"])
}

func TestQuests_StartPending(t *testing.T) {
	e := newEnv(t)
	token := e.login(t, "starter")

	w := e.do(http.MethodPost, "/api/quests/start", map[string]interface{}{
		"quest_id": "quest-1",
	}, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "pending", resp["phase"])
	assert.Equal(t, "quest-1", resp["quest_id"])
}

func TestQuests_StartUnknown(t *testing.T) {
	e := newEnv(t)
	token := e.login(t, "loster")

	w := e.do(http.MethodPost, "/api/quests/start", map[string]interface{}{
		"quest_id": "quest-404",
	}, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQuests_StartWhileInProgress(t *testing.T) {
	e := newEnv(t)
	token := e.login(t, "greedy")

	w := e.do(http.MethodPost, "/api/quests/start", map[string]interface{}{
		"quest_id": "quest-1",
	}, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)

	w2 := e.do(http.MethodPost, "/api/quests/start", map[string]interface{}{
		"quest_id": "quest-2",
	}, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusConflict, w2.Code)
}

func TestQuests_FullLifecycleOverSignals(t *testing.T) {
	e := newEnv(t)
	token := e.login(t, "hero")

	w := e.do(http.MethodPost, "/api/quests/start", map[string]interface{}{
		"quest_id": "quest-1",
	}, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)

	// Phone locks...
	w = e.do(http.MethodPost, "/api/signals", map[string]interface{}{
		"kind": "locked", "at_ms": 1_000,
	}, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)

	// ...and unlocks after the full duration.
	w = e.do(http.MethodPost, "/api/signals", map[string]interface{}{
		"kind": "unlocked", "at_ms": 1_000 + questDurMs + 500,
	}, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode(t, w)["status"].(map[string]interface{})
	require.Equal(t, "completed", status["phase"])
	outcome := status["outcome"].(map[string]interface{})
	assert.Equal(t, true, outcome["success"])
	assert.NotEmpty(t, outcome["story"])

	// Acknowledge collects the XP.
	w = e.do(http.MethodPost, "/api/quests/acknowledge", nil, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, true, resp["acknowledged"])
	progress := resp["progress"].(map[string]interface{})
	assert.Equal(t, float64(1), progress["level"])
	assert.Equal(t, float64(50), progress["current_xp"])

	// The quest's point of interest is now revealed.
	w = e.do(http.MethodGet, "/api/character/locations", nil, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	// Slot is free again.
	w = e.do(http.MethodGet, "/api/quests/current", nil, "Authorization", "Bearer "+token)
	assert.Equal(t, "none", decode(t, w)["phase"])
}

func TestQuests_EarlyUnlockFails(t *testing.T) {
	e := newEnv(t)
	token := e.login(t, "fidgeter")

	w := e.do(http.MethodPost, "/api/quests/start", map[string]interface{}{
		"quest_id": "quest-1", "immediate": true,
	}, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)

	now := time.Now().UnixMilli()
	w = e.do(http.MethodPost, "/api/signals", map[string]interface{}{
		"kind": "locked", "at_ms": now,
	}, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(http.MethodPost, "/api/signals", map[string]interface{}{
		"kind": "unlocked", "at_ms": now + 2_000,
	}, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode(t, w)["status"].(map[string]interface{})
	require.Equal(t, "failed", status["phase"])
	outcome := status["outcome"].(map[string]interface{})
	assert.Equal(t, false, outcome["success"])

	// Acknowledging a failure grants nothing.
	w = e.do(http.MethodPost, "/api/quests/acknowledge", nil, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, true, resp["acknowledged"])
	assert.Nil(t, resp["progress"])
}

func TestQuests_AbandonSettlesAsFailure(t *testing.T) {
	e := newEnv(t)
	token := e.login(t, "quitter")

	w := e.do(http.MethodPost, "/api/quests/start", map[string]interface{}{
		"quest_id": "quest-2",
	}, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(http.MethodPost, "/api/quests/abandon", nil, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	outcome := decode(t, w)["outcome"].(map[string]interface{})
	assert.Equal(t, false, outcome["success"])
	assert.Equal(t, "quest-2", outcome["quest_id"])
}

func TestQuests_AbandonWithoutQuest(t *testing.T) {
	e := newEnv(t)
	token := e.login(t, "confused")

	w := e.do(http.MethodPost, "/api/quests/abandon", nil, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestQuests_AcknowledgeEmptySlot(t *testing.T) {
	e := newEnv(t)
	token := e.login(t, "eager")

	w := e.do(http.MethodPost, "/api/quests/acknowledge", nil, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["acknowledged"])
}

func TestQuests_History(t *testing.T) {
	e := newEnv(t)
	token := e.login(t, "historian")

	w := e.do(http.MethodPost, "/api/quests/start", map[string]interface{}{
		"quest_id": "quest-1",
	}, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(http.MethodPost, "/api/quests/abandon", nil, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)

	// Journal writes are batched; force the flush before reading.
	e.journal.Stop(context.Background())

	w = e.do(http.MethodGet, "/api/quests/history", nil, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	entries := decode(t, w)["entries"].([]interface{})
	require.NotEmpty(t, entries)
	newest := entries[0].(map[string]interface{})
	assert.Equal(t, "fail", newest["action"])
}
