package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	apperrors "github.com/luminachat/server-go/internal/errors"
	"github.com/luminachat/server-go/internal/genai"
	"github.com/luminachat/server-go/internal/model"
	"github.com/luminachat/server-go/internal/repository"
	"github.com/luminachat/server-go/internal/util"
)

const (
	chunkSummaryPrompt = "Analyze the following conversation chunk and extract the user's core preferences, " +
		"facts, actions, and important context that would be useful for an AI to remember in future " +
		"conversations. Provide a highly condensed paragraph summarizing these points. Do not include " +
		"pleasantries."

	conversationSummaryPrompt = "Analyze the following conversation and extract the user's core preferences, " +
		"facts, and important context that would be useful for an AI to remember in future conversations. " +
		"Provide a concise paragraph summarizing these points."

	// Retrieval output is injected into the per-turn system instruction;
	// this bound keeps a pathological match set from crowding out the
	// actual prompt.
	maxContextChars = 8000
)

type SyncResult struct {
	Count int `json:"count"`
}

type MemoryService struct {
	msgRepo    repository.ChatMessageRepository
	chunkRepo  repository.MemoryChunkRepository
	vectorRepo repository.PersonalVectorRepository
	embedder   genai.Embedder
	summarizer genai.Summarizer
	config     *ConfigProvider
}

func NewMemoryService(
	msgRepo repository.ChatMessageRepository,
	chunkRepo repository.MemoryChunkRepository,
	vectorRepo repository.PersonalVectorRepository,
	embedder genai.Embedder,
	summarizer genai.Summarizer,
	config *ConfigProvider,
) *MemoryService {
	return &MemoryService{
		msgRepo:    msgRepo,
		chunkRepo:  chunkRepo,
		vectorRepo: vectorRepo,
		embedder:   embedder,
		summarizer: summarizer,
		config:     config,
	}
}

// SyncMemory runs the distillation pipeline for one session chunk:
// persist the raw turns, summarize them, embed the summary, insert one
// Tier-1 chunk back-linked to the first and last inserted turn. A blank
// summary aborts before the chunk insert; the raw turns stay, they are
// transcript history in their own right.
func (s *MemoryService) SyncMemory(ctx context.Context, userID, sessionID string, messages []model.IncomingMessage) (*SyncResult, error) {
	if !util.IsValidUUID(sessionID) {
		return nil, apperrors.InvalidInput("session_id", "must be a UUID")
	}
	if len(messages) == 0 {
		return nil, apperrors.MissingRequired("messages")
	}

	params := make([]model.CreateChatMessageParams, 0, len(messages))
	for _, m := range messages {
		params = append(params, model.CreateChatMessageParams{
			UserID:    userID,
			SessionID: sessionID,
			Role:      m.NormalizedRole(),
			Content:   m.ExtractText(),
		})
	}

	inserted, err := s.msgRepo.InsertBatch(ctx, params)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	var startID, endID *string
	if len(inserted) > 0 {
		startID = &inserted[0].ID
		endID = &inserted[len(inserted)-1].ID
	}

	summaryText, err := s.summarize(ctx, chunkSummaryPrompt, "Conversation Chunk", params)
	if err != nil {
		return nil, err
	}

	embedding, err := s.embed(ctx, summaryText)
	if err != nil {
		return nil, err
	}

	chunk, err := s.chunkRepo.Create(ctx, model.CreateMemoryChunkParams{
		UserID:         userID,
		SessionID:      sessionID,
		SummaryText:    summaryText,
		Embedding:      embedding,
		StartMessageID: startID,
		EndMessageID:   endID,
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("userId", userID).
		Str("sessionId", sessionID).
		Str("chunkId", chunk.ID).
		Int("turns", len(inserted)).
		Msg("memory chunk distilled")

	return &SyncResult{Count: len(messages)}, nil
}

// Vectorize distills a whole conversation into one flat personal
// vector. Unlike SyncMemory it stores no raw turns and keeps no
// back-links, only the provenance in metadata.
func (s *MemoryService) Vectorize(ctx context.Context, userID, convID string, messages []model.IncomingMessage) (*model.PersonalVector, error) {
	if len(messages) == 0 {
		return nil, apperrors.MissingRequired("messages")
	}

	params := make([]model.CreateChatMessageParams, 0, len(messages))
	for _, m := range messages {
		params = append(params, model.CreateChatMessageParams{
			Role:    m.NormalizedRole(),
			Content: m.ExtractText(),
		})
	}

	summaryText, err := s.summarize(ctx, conversationSummaryPrompt, "Conversation", params)
	if err != nil {
		return nil, err
	}

	embedding, err := s.embed(ctx, summaryText)
	if err != nil {
		return nil, err
	}

	metadata, _ := json.Marshal(map[string]any{
		"source":  "conversation_summary",
		"conv_id": nullableString(convID),
	})

	vec, err := s.vectorRepo.Create(ctx, model.CreatePersonalVectorParams{
		UserID:    userID,
		Content:   summaryText,
		Embedding: embedding,
		Metadata:  metadata,
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().Str("userId", userID).Str("vectorId", vec.ID).Msg("conversation vectorized")
	return vec, nil
}

func (s *MemoryService) summarize(ctx context.Context, instruction, label string, turns []model.CreateChatMessageParams) (string, error) {
	var blob strings.Builder
	for _, t := range turns {
		speaker := "Assistant"
		if t.Role == model.RoleUser {
			speaker = "User"
		}
		blob.WriteString(speaker)
		blob.WriteString(": ")
		blob.WriteString(t.Content)
		blob.WriteString("\n")
	}

	modelName := s.config.GetString(ctx, ConfigKeySummaryModel)
	prompt := fmt.Sprintf("%s \n\n%s:\n%s", instruction, label, blob.String())

	summary, err := s.summarizer.Summarize(ctx, modelName, prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(summary) == "" {
		return "", apperrors.SummaryEmpty()
	}
	return strings.TrimSpace(summary), nil
}

func (s *MemoryService) embed(ctx context.Context, text string) (model.Vector, error) {
	modelName := s.config.GetString(ctx, ConfigKeyEmbeddingModel)
	values, err := s.embedder.Embed(ctx, modelName, text)
	if err != nil {
		return nil, err
	}
	return model.Vector(values), nil
}

// RetrieveContext assembles the memory context block for one chat turn.
// It is strictly best-effort: every failure on this path logs and
// degrades to a smaller block or an empty string, never an error.
func (s *MemoryService) RetrieveContext(ctx context.Context, userID, latestUserText string) string {
	text := strings.TrimSpace(latestUserText)
	if text == "" {
		return ""
	}

	embedding, err := s.embed(ctx, text)
	if err != nil {
		log.Warn().Err(err).Str("userId", userID).Msg("retrieval: query embedding failed")
		return ""
	}

	threshold := s.config.GetFloat(ctx, ConfigKeyMatchThreshold)
	count := s.config.GetInt(ctx, ConfigKeyMatchCount)

	var sections []string

	chunks, err := s.chunkRepo.Match(ctx, userID, embedding, threshold, count)
	if err != nil {
		log.Warn().Err(err).Str("userId", userID).Msg("retrieval: tier-1 match failed")
	} else {
		for _, chunk := range chunks {
			sections = append(sections, s.renderChunk(ctx, userID, chunk))
		}
	}

	flat, err := s.vectorRepo.Match(ctx, userID, embedding, threshold, count)
	if err != nil {
		log.Warn().Err(err).Str("userId", userID).Msg("retrieval: flat match failed")
	} else if len(flat) > 0 {
		var notes strings.Builder
		notes.WriteString("Personal notes:\n")
		for _, v := range flat {
			notes.WriteString("- ")
			notes.WriteString(v.Content)
			notes.WriteString("\n")
		}
		sections = append(sections, notes.String())
	}

	if len(sections) == 0 {
		return ""
	}

	block := "Relevant memories from past conversations:\n\n" + strings.Join(sections, "\n")
	if len(block) > maxContextChars {
		block = block[:maxContextChars]
	}
	return block
}

// renderChunk expands a matched chunk back into the literal dialogue it
// was distilled from. The summary always renders; the expansion is
// dropped when the back-links no longer resolve.
func (s *MemoryService) renderChunk(ctx context.Context, userID string, chunk model.MatchedChunk) string {
	var section strings.Builder
	section.WriteString("Memory: ")
	section.WriteString(chunk.SummaryText)
	section.WriteString("\n")

	turns := s.expandChunk(ctx, userID, chunk.MemoryChunk)
	if len(turns) > 0 {
		section.WriteString("Original exchange:\n")
		for _, t := range turns {
			speaker := "Assistant"
			if t.Role == model.RoleUser {
				speaker = "User"
			}
			section.WriteString(speaker)
			section.WriteString(": ")
			section.WriteString(t.Content)
			section.WriteString("\n")
		}
	}

	return section.String()
}

func (s *MemoryService) expandChunk(ctx context.Context, userID string, chunk model.MemoryChunk) []model.ChatMessage {
	if chunk.StartMessageID == nil || chunk.EndMessageID == nil {
		return nil
	}

	start, err := s.msgRepo.FindByID(ctx, *chunk.StartMessageID)
	if err != nil || start == nil {
		log.Warn().Err(err).Str("chunkId", chunk.ID).Msg("retrieval: start message unresolved")
		return nil
	}
	end, err := s.msgRepo.FindByID(ctx, *chunk.EndMessageID)
	if err != nil || end == nil {
		log.Warn().Err(err).Str("chunkId", chunk.ID).Msg("retrieval: end message unresolved")
		return nil
	}

	turns, err := s.msgRepo.FindBySessionWindow(ctx, userID, chunk.SessionID, start.CreatedAt, end.CreatedAt)
	if err != nil {
		log.Warn().Err(err).Str("chunkId", chunk.ID).Msg("retrieval: window expansion failed")
		return nil
	}
	return turns
}

// ListMemories returns the user's flat personal vectors, newest first.
func (s *MemoryService) ListMemories(ctx context.Context, userID string) ([]model.PersonalVector, error) {
	vectors, err := s.vectorRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if vectors == nil {
		vectors = []model.PersonalVector{}
	}
	return vectors, nil
}

// UpdateMemory replaces a personal vector's content and re-embeds it.
func (s *MemoryService) UpdateMemory(ctx context.Context, userID, id, content string) (*model.PersonalVector, error) {
	if id == "" || strings.TrimSpace(content) == "" {
		return nil, apperrors.ValidationError("id and content are required")
	}

	embedding, err := s.embed(ctx, content)
	if err != nil {
		return nil, err
	}

	vec, err := s.vectorRepo.UpdateContent(ctx, userID, id, content, embedding)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if vec == nil {
		return nil, apperrors.NotFound("memory")
	}
	return vec, nil
}

func (s *MemoryService) DeleteMemory(ctx context.Context, userID, id string) error {
	if err := s.vectorRepo.Delete(ctx, userID, id); err != nil {
		return apperrors.Database(err)
	}
	return nil
}

func (s *MemoryService) ClearMemories(ctx context.Context, userID string) (int64, error) {
	count, err := s.vectorRepo.DeleteByUserID(ctx, userID)
	if err != nil {
		return 0, apperrors.Database(err)
	}

	log.Info().Str("userId", userID).Int64("count", count).Msg("personal memories cleared")
	return count, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
