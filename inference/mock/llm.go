package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"mealsense"
)

// LLMClient is a scripted inference client. Responses are keyed by a substring
// of the prompt rather than call order, because the pipeline runs some stages
// concurrently and call order is not deterministic.
type LLMClient struct {
	mu    sync.Mutex
	rules []rule
	err   error
}

type rule struct {
	match    string
	response string
}

// NewLLMClient creates an empty scripted client; add responses with Respond.
func NewLLMClient() *LLMClient {
	return &LLMClient{}
}

// NewFailingLLMClient creates a client whose every call fails with err.
func NewFailingLLMClient(err error) *LLMClient {
	return &LLMClient{err: err}
}

// Respond registers a scripted response for any prompt containing match.
// Rules are checked in registration order. Returns the client for chaining.
func (c *LLMClient) Respond(match, response string) *LLMClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = append(c.rules, rule{match: match, response: response})
	return c
}

// Generate returns the first scripted response whose match is found in the
// prompt, or an error when nothing matches.
func (c *LLMClient) Generate(ctx context.Context, req mealsense.InferenceRequest) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.rules {
		if strings.Contains(req.Prompt, r.match) {
			return r.response, nil
		}
	}
	return "", fmt.Errorf("mock: no scripted response for prompt %q", truncate(req.Prompt, 80))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
