package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/richinex/folio/completion"
	"github.com/richinex/folio/llm"
	"github.com/richinex/folio/usage"
)

// ChatRequest is the body of a chat call. Document is base64 in JSON.
type ChatRequest struct {
	Prompt           string   `json:"prompt"`
	SystemPrompt     string   `json:"system_prompt,omitempty"`
	Temperature      *float32 `json:"temperature,omitempty"`
	MaxTokens        uint32   `json:"max_tokens,omitempty"`
	StopSequences    []string `json:"stop_sequences,omitempty"`
	Document         []byte   `json:"document,omitempty"`
	DocumentMIMEType string   `json:"document_mime_type,omitempty"`
	CacheID          string   `json:"cache_id,omitempty"`
}

type tokenEvent struct {
	Text string `json:"text"`
}

type doneEvent struct {
	CacheID     string          `json:"cache_id,omitempty"`
	Fingerprint string          `json:"fingerprint,omitempty"`
	Mode        completion.Mode `json:"mode"`
	Usage       *usage.Snapshot `json:"usage,omitempty"`
}

type errorEvent struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func (s *Server) handleChat(c *fiber.Ctx) error {
	var body ChatRequest
	if err := c.BodyParser(&body); err != nil {
		return s.fail(c, fiber.StatusBadRequest, "BAD_REQUEST", fmt.Errorf("failed to parse request: %w", err))
	}

	// The stream outlives the handler, so it gets its own cancellation.
	ctx, cancel := context.WithCancel(context.Background())
	res, err := s.chat.Chat(ctx, c.Params("id"), completion.Request{
		Prompt:           body.Prompt,
		SystemPrompt:     body.SystemPrompt,
		Temperature:      body.Temperature,
		MaxTokens:        body.MaxTokens,
		StopSequences:    body.StopSequences,
		Document:         body.Document,
		DocumentMIMEType: body.DocumentMIMEType,
		ExistingCacheID:  body.CacheID,
	})
	if err != nil {
		cancel()
		if errors.Is(err, completion.ErrEmptyPrompt) {
			return s.fail(c, fiber.StatusBadRequest, "BAD_REQUEST", err)
		}
		return s.fail(c, fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR", err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	log := s.log.WithField("request_id", res.RequestID)
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()

		for tok := range res.Tokens {
			if err := writeEvent(w, "token", tokenEvent{Text: tok}); err != nil {
				log.WithError(err).Debug("client went away, cancelling stream")
				cancel()
				for range res.Tokens {
				}
				_ = res.Wait()
				return
			}
		}

		if err := res.Wait(); err != nil {
			kind := llm.KindOf(err)
			_ = writeEvent(w, "error", errorEvent{
				Kind:    kind.String(),
				Message: kind.UserMessage(),
				Detail:  err.Error(),
			})
			return
		}

		done := doneEvent{CacheID: res.NewCacheID, Fingerprint: res.Fingerprint, Mode: res.Mode}
		if u, ok := res.Usage(); ok {
			done.Usage = &u
		}
		_ = writeEvent(w, "done", done)
	})
	return nil
}

// writeEvent writes one server-sent event and flushes it.
func writeEvent(w *bufio.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return w.Flush()
}
