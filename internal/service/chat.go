package service

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	apperrors "github.com/luminachat/server-go/internal/errors"
	"github.com/luminachat/server-go/internal/genai"
	"github.com/luminachat/server-go/internal/model"
	"github.com/luminachat/server-go/internal/repository"
)

// StreamEvent is one unit of the chat turn's output stream, relayed to
// the client as an SSE event.
type StreamEvent struct {
	Type  string `json:"type"` // text | image | done | error
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"` // data URL
	Error string `json:"error,omitempty"`
}

// Some models narrate the tool call as literal text instead of a
// structured invocation. This matches both the pseudo-syntax
// "[generate_image: {...}]" and a bare JSON object carrying a prompt.
var imageToolPattern = regexp.MustCompile(`(?i)(?:\[generate_image:\s*)?(\{[\s\S]*"(?:action_input|prompt)"[\s\S]*\})`)

type imageToolCall struct {
	Action      string          `json:"action"`
	Prompt      string          `json:"prompt"`
	ActionInput json.RawMessage `json:"action_input"`
}

type ChatService struct {
	memory   *MemoryService
	streamer genai.ChatStreamer
	imageGen genai.ImageGenerator
	sysRepo  repository.SystemInstructionRepository
	config   *ConfigProvider
}

func NewChatService(
	memory *MemoryService,
	streamer genai.ChatStreamer,
	imageGen genai.ImageGenerator,
	sysRepo repository.SystemInstructionRepository,
	config *ConfigProvider,
) *ChatService {
	return &ChatService{
		memory:   memory,
		streamer: streamer,
		imageGen: imageGen,
		sysRepo:  sysRepo,
		config:   config,
	}
}

// StreamTurn runs one chat turn: assemble the per-turn system
// instruction (stored instruction plus retrieved memory context), relay
// the model's stream through emit, then resolve any image tool call the
// model produced. The caller owns the transport; a failed emit aborts
// the turn. Cancellation arrives through ctx and leaves already-emitted
// output standing.
func (s *ChatService) StreamTurn(
	ctx context.Context,
	userID, modelName string,
	messages []model.IncomingMessage,
	clientInstruction string,
	emit func(StreamEvent) error,
) error {
	if len(messages) == 0 {
		return apperrors.MissingRequired("messages")
	}

	if modelName == "" {
		modelName = s.config.GetString(ctx, ConfigKeyDefaultChat)
	}

	last := messages[len(messages)-1]
	prompt := last.ExtractText()
	if strings.TrimSpace(prompt) == "" {
		return apperrors.ValidationError("latest message carries no text")
	}

	instruction := s.assembleInstruction(ctx, userID, clientInstruction, prompt)

	history := make([]genai.Turn, 0, len(messages)-1)
	for _, m := range messages[:len(messages)-1] {
		text := m.ExtractText()
		if text == "" {
			continue
		}
		history = append(history, genai.Turn{Role: string(m.NormalizedRole()), Text: text})
	}

	full, err := s.streamer.StreamChat(ctx, modelName, instruction, history, prompt, func(delta string) error {
		return emit(StreamEvent{Type: "text", Text: delta})
	})
	if err != nil {
		// Client aborts are normal termination; partial output stands.
		if ctx.Err() != nil {
			log.Debug().Str("userId", userID).Msg("chat stream aborted by client")
			return nil
		}
		return err
	}

	if call, ok := detectImageToolCall(full); ok {
		if err := s.resolveImageCall(ctx, userID, call, emit); err != nil {
			return err
		}
	}

	return emit(StreamEvent{Type: "done"})
}

func (s *ChatService) assembleInstruction(ctx context.Context, userID, clientInstruction, latestUserText string) string {
	instruction := clientInstruction
	if instruction == "" {
		stored, err := s.sysRepo.FindByUserID(ctx, userID)
		if err != nil {
			log.Warn().Err(err).Str("userId", userID).Msg("system instruction lookup failed")
		} else if stored != nil {
			instruction = stored.Content
		}
	}

	// Memory context merges into this turn only, never back into the
	// stored instruction.
	if block := s.memory.RetrieveContext(ctx, userID, latestUserText); block != "" {
		if instruction != "" {
			instruction += "\n\n"
		}
		instruction += block
	}

	return instruction
}

func (s *ChatService) resolveImageCall(ctx context.Context, userID string, call imageToolCall, emit func(StreamEvent) error) error {
	imageModel := s.config.GetString(ctx, ConfigKeyImageGenModel)

	dataURL, err := s.imageGen.GenerateImage(ctx, imageModel, call.Prompt)
	if err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("image generation failed")
		return emit(StreamEvent{Type: "error", Error: "Image generation failed"})
	}

	log.Info().Str("userId", userID).Str("model", imageModel).Msg("image tool call resolved")
	return emit(StreamEvent{Type: "image", Image: dataURL})
}

// detectImageToolCall extracts an image-generation request from the
// accumulated model output.
func detectImageToolCall(text string) (imageToolCall, bool) {
	groups := imageToolPattern.FindStringSubmatch(text)
	if groups == nil {
		return imageToolCall{}, false
	}

	var call imageToolCall
	if err := json.Unmarshal([]byte(groups[1]), &call); err != nil {
		return imageToolCall{}, false
	}

	if call.Prompt == "" && len(call.ActionInput) > 0 {
		// action_input is either a JSON object, a JSON-encoded string of
		// one, or the prompt itself.
		var inner imageToolCall
		if err := json.Unmarshal(call.ActionInput, &inner); err == nil && inner.Prompt != "" {
			call.Prompt = inner.Prompt
			if call.Action == "" {
				call.Action = inner.Action
			}
		} else {
			var raw string
			if err := json.Unmarshal(call.ActionInput, &raw); err == nil {
				if err := json.Unmarshal([]byte(raw), &inner); err == nil && inner.Prompt != "" {
					call.Prompt = inner.Prompt
				} else {
					call.Prompt = raw
				}
			}
		}
	}

	if call.Action == "" {
		call.Action = "generate"
	}

	return call, call.Prompt != ""
}

// GetSystemInstruction returns the user's stored instruction, or nil.
func (s *ChatService) GetSystemInstruction(ctx context.Context, userID string) (*model.SystemInstruction, error) {
	si, err := s.sysRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return si, nil
}

// SetSystemInstruction upserts the user's stored instruction.
func (s *ChatService) SetSystemInstruction(ctx context.Context, userID, content string) (*model.SystemInstruction, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperrors.MissingRequired("content")
	}
	if err := s.sysRepo.Upsert(ctx, userID, content); err != nil {
		return nil, apperrors.Database(err)
	}
	si, err := s.sysRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return si, nil
}
