package gateway

import (
	"context"
	"sync"

	"reasongate-gateway/internal/llm"
)

// fakeProvider is a scripted llm.Provider that counts calls.
type fakeProvider struct {
	name string

	completion  *llm.Completion
	completeErr error

	chunks    []llm.StreamResult
	streamErr error
	// block keeps the stream open after the scripted chunks until ctx is done.
	block bool

	mu            sync.Mutex
	completeCalls int
	streamCalls   int
	lastMessages  []llm.Message
	streamCtxDone chan struct{}
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(ctx context.Context, messages []llm.Message, _ llm.RequestConfig) (*llm.Completion, error) {
	f.mu.Lock()
	f.completeCalls++
	f.lastMessages = append([]llm.Message(nil), messages...)
	f.mu.Unlock()

	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return f.completion, nil
}

func (f *fakeProvider) StreamChat(ctx context.Context, messages []llm.Message, _ llm.RequestConfig) (<-chan llm.StreamResult, error) {
	f.mu.Lock()
	f.streamCalls++
	f.lastMessages = append([]llm.Message(nil), messages...)
	done := make(chan struct{})
	f.streamCtxDone = done
	f.mu.Unlock()

	if f.streamErr != nil {
		close(done)
		return nil, f.streamErr
	}

	out := make(chan llm.StreamResult)
	go func() {
		defer close(out)
		defer close(done)
		for _, r := range f.chunks {
			select {
			case <-ctx.Done():
				return
			case out <- r:
			}
		}
		if f.block {
			<-ctx.Done()
		}
	}()
	return out, nil
}

func (f *fakeProvider) calls() (complete, stream int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completeCalls, f.streamCalls
}

func (f *fakeProvider) messages() []llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastMessages
}

func (f *fakeProvider) streamDone() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streamCtxDone
}

func reasoningChunk(s string) llm.StreamResult {
	return llm.StreamResult{Chunk: &llm.StreamChunk{Kind: llm.EventDelta, Reasoning: llm.String(s)}}
}

func answerChunk(s string) llm.StreamResult {
	return llm.StreamResult{Chunk: &llm.StreamChunk{Kind: llm.EventDelta, Text: s}}
}

func usageOnlyChunk(u llm.Usage) llm.StreamResult {
	return llm.StreamResult{Chunk: &llm.StreamChunk{Kind: llm.EventMessageDelta, Usage: &u}}
}

func messageStart(blocks ...llm.ContentBlock) llm.StreamResult {
	return llm.StreamResult{Chunk: &llm.StreamChunk{Kind: llm.EventMessageStart, Content: blocks}}
}

func contentDelta(text string) llm.StreamResult {
	return llm.StreamResult{Chunk: &llm.StreamChunk{
		Kind:  llm.EventContentDelta,
		Delta: llm.ContentBlock{Type: llm.BlockTextDelta, Text: text},
	}}
}

func messageDelta(u llm.Usage) llm.StreamResult {
	return llm.StreamResult{Chunk: &llm.StreamChunk{Kind: llm.EventMessageDelta, Usage: &u}}
}
