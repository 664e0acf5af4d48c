package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luminachat/server-go/internal/middleware"
	"github.com/luminachat/server-go/internal/model"
	"github.com/luminachat/server-go/internal/service"
)

type memChunkRepo struct {
	fakeChunkRepo
	created []model.CreateMemoryChunkParams
}

func (f *memChunkRepo) Create(ctx context.Context, params model.CreateMemoryChunkParams) (*model.MemoryChunk, error) {
	f.created = append(f.created, params)
	return &model.MemoryChunk{ID: "chunk-1", UserID: params.UserID, SessionID: params.SessionID}, nil
}

type memVectorRepo struct {
	fakeVectorRepo
	vectors []model.PersonalVector
	deleted []string
}

func (f *memVectorRepo) FindByUserID(ctx context.Context, userID string) ([]model.PersonalVector, error) {
	return f.vectors, nil
}

func (f *memVectorRepo) Create(ctx context.Context, params model.CreatePersonalVectorParams) (*model.PersonalVector, error) {
	vec := model.PersonalVector{
		ID:        fmt.Sprintf("vec-%d", len(f.vectors)+1),
		UserID:    params.UserID,
		Content:   params.Content,
		Embedding: params.Embedding,
		Metadata:  params.Metadata,
		CreatedAt: time.Now(),
	}
	f.vectors = append(f.vectors, vec)
	return &vec, nil
}

func (f *memVectorRepo) UpdateContent(ctx context.Context, userID, id, content string, embedding model.Vector) (*model.PersonalVector, error) {
	for i := range f.vectors {
		if f.vectors[i].ID == id && f.vectors[i].UserID == userID {
			f.vectors[i].Content = content
			return &f.vectors[i], nil
		}
	}
	return nil, nil
}

func (f *memVectorRepo) Delete(ctx context.Context, userID, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *memVectorRepo) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	count := int64(len(f.vectors))
	f.vectors = nil
	return count, nil
}

func newMemoryHandler(vectorRepo *memVectorRepo) *MemoryHandler {
	config := service.NewConfigProvider(fakeConfigRepo{})
	memory := service.NewMemoryService(fakeMsgRepo{}, &memChunkRepo{}, vectorRepo, fakeEmbedder{}, fakeSummarizer{}, config)
	return NewMemoryHandler(memory)
}

func memoryRequest(t *testing.T, method, path, body string, user *model.User) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if user != nil {
		ctx := context.WithValue(req.Context(), middleware.UserContextKey, user)
		req = req.WithContext(ctx)
	}
	return req
}

func TestMemoryHandler(t *testing.T) {
	user := &model.User{ID: "user-1", Username: "alice", IsActive: true}
	sessionID := "3f2b9c1e-4d4f-4a71-9e0a-6f2d8c5b1a23"

	t.Run("every endpoint rejects an unauthenticated request", func(t *testing.T) {
		h := newMemoryHandler(&memVectorRepo{})

		endpoints := []struct {
			name    string
			handler http.HandlerFunc
			method  string
		}{
			{"sync", h.SyncMemory, http.MethodPost},
			{"vectorize", h.Vectorize, http.MethodPost},
			{"list", h.ListMemories, http.MethodGet},
			{"update", h.UpdateMemory, http.MethodPut},
			{"delete", h.DeleteMemory, http.MethodDelete},
		}
		for _, ep := range endpoints {
			rec := httptest.NewRecorder()
			ep.handler(rec, memoryRequest(t, ep.method, "/api/memories", `{}`, nil))
			assert.Equal(t, http.StatusUnauthorized, rec.Code, ep.name)
		}
	})

	t.Run("sync reports the stored turn count", func(t *testing.T) {
		h := newMemoryHandler(&memVectorRepo{})

		body := fmt.Sprintf(`{"session_id": "%s", "messages": [
			{"role": "user", "content": "I moved to Lisbon."},
			{"role": "assistant", "content": "Noted."}
		]}`, sessionID)
		rec := httptest.NewRecorder()
		h.SyncMemory(rec, memoryRequest(t, http.MethodPost, "/api/memory/sync", body, user))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Success bool `json:"success"`
			Count   int  `json:"count"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, 2, resp.Count)
	})

	t.Run("sync rejects a non-UUID session id", func(t *testing.T) {
		h := newMemoryHandler(&memVectorRepo{})

		rec := httptest.NewRecorder()
		h.SyncMemory(rec, memoryRequest(t, http.MethodPost, "/api/memory/sync",
			`{"session_id": "not-a-uuid", "messages": [{"role": "user", "content": "hi"}]}`, user))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("vectorize returns the stored memory", func(t *testing.T) {
		repo := &memVectorRepo{}
		h := newMemoryHandler(repo)

		rec := httptest.NewRecorder()
		h.Vectorize(rec, memoryRequest(t, http.MethodPost, "/api/vectorize",
			`{"conv_id": "conv-1", "messages": [{"role": "user", "content": "hi"}]}`, user))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Success bool                 `json:"success"`
			Memory  model.PersonalVector `json:"memory"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "summary", resp.Memory.Content)
		require.Len(t, repo.vectors, 1)
	})

	t.Run("list returns the user's memories", func(t *testing.T) {
		repo := &memVectorRepo{vectors: []model.PersonalVector{
			{ID: "vec-1", UserID: "user-1", Content: "Vegetarian."},
		}}
		h := newMemoryHandler(repo)

		rec := httptest.NewRecorder()
		h.ListMemories(rec, memoryRequest(t, http.MethodGet, "/api/memories", "", user))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Memories []model.PersonalVector `json:"memories"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Memories, 1)
		assert.Equal(t, "Vegetarian.", resp.Memories[0].Content)
	})

	t.Run("update rewrites an owned memory", func(t *testing.T) {
		repo := &memVectorRepo{vectors: []model.PersonalVector{
			{ID: "vec-1", UserID: "user-1", Content: "Vegetarian."},
		}}
		h := newMemoryHandler(repo)

		rec := httptest.NewRecorder()
		h.UpdateMemory(rec, memoryRequest(t, http.MethodPut, "/api/memories",
			`{"id": "vec-1", "content": "Vegan."}`, user))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Vegan.", repo.vectors[0].Content)
	})

	t.Run("update of an unknown memory is a 404", func(t *testing.T) {
		h := newMemoryHandler(&memVectorRepo{})

		rec := httptest.NewRecorder()
		h.UpdateMemory(rec, memoryRequest(t, http.MethodPut, "/api/memories",
			`{"id": "vec-404", "content": "Vegan."}`, user))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("delete removes one memory", func(t *testing.T) {
		repo := &memVectorRepo{}
		h := newMemoryHandler(repo)

		rec := httptest.NewRecorder()
		h.DeleteMemory(rec, memoryRequest(t, http.MethodDelete, "/api/memories",
			`{"id": "vec-1"}`, user))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"vec-1"}, repo.deleted)
	})

	t.Run("clearAll deletes everything and reports the count", func(t *testing.T) {
		repo := &memVectorRepo{vectors: []model.PersonalVector{
			{ID: "vec-1", UserID: "user-1"},
			{ID: "vec-2", UserID: "user-1"},
		}}
		h := newMemoryHandler(repo)

		rec := httptest.NewRecorder()
		h.DeleteMemory(rec, memoryRequest(t, http.MethodDelete, "/api/memories",
			`{"clearAll": true}`, user))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Deleted int64 `json:"deleted"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, int64(2), resp.Deleted)
		assert.Empty(t, repo.vectors)
	})

	t.Run("delete without id or clearAll is a 400", func(t *testing.T) {
		h := newMemoryHandler(&memVectorRepo{})

		rec := httptest.NewRecorder()
		h.DeleteMemory(rec, memoryRequest(t, http.MethodDelete, "/api/memories", `{}`, user))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
