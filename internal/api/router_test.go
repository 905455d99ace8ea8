package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srujana-sanaka/tars-chat/internal/config"
	"github.com/srujana-sanaka/tars-chat/internal/models"
	"github.com/srujana-sanaka/tars-chat/internal/store"
)

const testSecret = "test-secret"

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	db, err := store.NewSQLiteStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(db.Close)

	cfg := &config.Config{
		Port:         "0",
		Env:          "development",
		JWTSecret:    testSecret,
		PresenceMode: config.PresenceShared,
	}
	return NewRouter(zerolog.Nop(), cfg, db, nil)
}

func sessionToken(t *testing.T, externalID, name string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  externalID,
		"name": name,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func syncUser(t *testing.T, router http.Handler, externalID, name string) (*models.User, string) {
	t.Helper()
	token := sessionToken(t, externalID, name)
	rec := doJSON(t, router, http.MethodPost, "/users/sync", token, map[string]string{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	user := decode[models.User](t, rec)
	return &user, token
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/users", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUnsyncedProfileIsForbidden(t *testing.T) {
	router := newTestRouter(t)
	token := sessionToken(t, "ext-ghost", "Ghost")

	rec := doJSON(t, router, http.MethodGet, "/conversations", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSyncProfileAndListUsers(t *testing.T) {
	router := newTestRouter(t)

	alice, aliceToken := syncUser(t, router, "ext-alice", "Alice")
	assert.Equal(t, "Alice", alice.Name)
	assert.True(t, alice.IsOnline)

	syncUser(t, router, "ext-bob", "Bob")

	rec := doJSON(t, router, http.MethodGet, "/users", aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	users := decode[[]map[string]any](t, rec)
	require.Len(t, users, 2)
	assert.Equal(t, "online", users[0]["activity"])
}

func TestDirectConversationStatusCodes(t *testing.T) {
	router := newTestRouter(t)

	_, aliceToken := syncUser(t, router, "ext-alice", "Alice")
	bob, _ := syncUser(t, router, "ext-bob", "Bob")

	body := map[string]string{"peer_id": bob.ID.String()}
	rec := doJSON(t, router, http.MethodPost, "/conversations/direct", aliceToken, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[models.Conversation](t, rec)

	// Second resolution returns the existing conversation
	rec = doJSON(t, router, http.MethodPost, "/conversations/direct", aliceToken, body)
	require.Equal(t, http.StatusOK, rec.Code)
	resolved := decode[models.Conversation](t, rec)
	assert.Equal(t, created.ID, resolved.ID)

	// Unknown peers and malformed IDs fail up front
	rec = doJSON(t, router, http.MethodPost, "/conversations/direct", aliceToken, map[string]string{"peer_id": "not-a-uuid"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessageLifecycleOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	_, aliceToken := syncUser(t, router, "ext-alice", "Alice")
	bob, bobToken := syncUser(t, router, "ext-bob", "Bob")

	rec := doJSON(t, router, http.MethodPost, "/conversations/direct", aliceToken, map[string]string{"peer_id": bob.ID.String()})
	require.Equal(t, http.StatusCreated, rec.Code)
	conv := decode[models.Conversation](t, rec)
	base := fmt.Sprintf("/conversations/%s", conv.ID)

	rec = doJSON(t, router, http.MethodPost, base+"/messages", aliceToken, map[string]string{"content": "hello"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	msg := decode[models.Message](t, rec)
	assert.Equal(t, "hello", msg.Content)

	// Blank content is rejected
	rec = doJSON(t, router, http.MethodPost, base+"/messages", aliceToken, map[string]string{"content": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Bob sees one unread message
	rec = doJSON(t, router, http.MethodGet, base+"/unread", bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	unread := decode[map[string]any](t, rec)
	assert.Equal(t, float64(1), unread["unread_count"])

	// Bob acknowledges
	rec = doJSON(t, router, http.MethodPost, base+"/read", bobToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = doJSON(t, router, http.MethodGet, base+"/unread", bobToken, nil)
	unread = decode[map[string]any](t, rec)
	assert.Equal(t, float64(0), unread["unread_count"])

	// Bob cannot edit Alice's message; the response is the unchanged row
	rec = doJSON(t, router, http.MethodPatch, "/messages/"+msg.ID, bobToken, map[string]string{"content": "hacked"})
	require.Equal(t, http.StatusOK, rec.Code)
	unchanged := decode[models.Message](t, rec)
	assert.Equal(t, "hello", unchanged.Content)

	// Alice edits her own message
	rec = doJSON(t, router, http.MethodPatch, "/messages/"+msg.ID, aliceToken, map[string]string{"content": "hello, bob"})
	require.Equal(t, http.StatusOK, rec.Code)
	edited := decode[models.Message](t, rec)
	assert.Equal(t, "hello, bob", edited.Content)
	assert.NotNil(t, edited.EditedAt)

	// Bob reacts
	rec = doJSON(t, router, http.MethodPost, "/messages/"+msg.ID+"/reactions", bobToken, map[string]string{"emoji": "👍"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Alice deletes; listing masks content but keeps the row and reactions
	rec = doJSON(t, router, http.MethodDelete, "/messages/"+msg.ID, aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, base+"/messages", bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := decode[[]models.Message](t, rec)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsDeleted)
	assert.Equal(t, "", msgs[0].Content)
	require.Len(t, msgs[0].Reactions, 1)
}

func TestTypingOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	_, aliceToken := syncUser(t, router, "ext-alice", "Alice")
	bob, bobToken := syncUser(t, router, "ext-bob", "Bob")

	rec := doJSON(t, router, http.MethodPost, "/conversations/direct", aliceToken, map[string]string{"peer_id": bob.ID.String()})
	require.Equal(t, http.StatusCreated, rec.Code)
	conv := decode[models.Conversation](t, rec)
	base := fmt.Sprintf("/conversations/%s", conv.ID)

	rec = doJSON(t, router, http.MethodPost, base+"/typing", aliceToken, map[string]bool{"typing": true})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Bob sees Alice typing; Alice does not see herself
	rec = doJSON(t, router, http.MethodGet, base+"/typing", bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	typists := decode[[]models.Typist](t, rec)
	require.Len(t, typists, 1)
	assert.Equal(t, "Alice", typists[0].Name)

	rec = doJSON(t, router, http.MethodGet, base+"/typing", aliceToken, nil)
	typists = decode[[]models.Typist](t, rec)
	assert.Empty(t, typists)

	// The aggregate view groups by conversation
	rec = doJSON(t, router, http.MethodGet, "/typing", bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	byConv := decode[map[string][]models.Typist](t, rec)
	require.Len(t, byConv, 1)
	assert.Equal(t, "Alice", byConv[conv.ID.String()][0].Name)

	rec = doJSON(t, router, http.MethodPost, base+"/typing", aliceToken, map[string]bool{"typing": false})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = doJSON(t, router, http.MethodGet, base+"/typing", bobToken, nil)
	typists = decode[[]models.Typist](t, rec)
	assert.Empty(t, typists)
}

func TestGroupConversationOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	_, aliceToken := syncUser(t, router, "ext-alice", "Alice")
	bob, _ := syncUser(t, router, "ext-bob", "Bob")
	carol, _ := syncUser(t, router, "ext-carol", "Carol")

	body := map[string]any{
		"name":            "Team",
		"participant_ids": []string{bob.ID.String(), carol.ID.String()},
	}
	rec := doJSON(t, router, http.MethodPost, "/conversations/group", aliceToken, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	conv := decode[models.Conversation](t, rec)
	assert.True(t, conv.IsGroup)
	assert.Len(t, conv.Participants, 3, "requester joins the group automatically")

	// Unknown participant IDs are rejected
	body["participant_ids"] = []string{uuid.NewString()}
	rec = doJSON(t, router, http.MethodPost, "/conversations/group", aliceToken, body)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
