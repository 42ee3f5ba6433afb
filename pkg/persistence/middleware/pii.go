package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
)

const mask = "***"

// PIIConfig selects what gets masked before a call is persisted.
type PIIConfig struct {
	// KeyPatterns mask whole metadata values whose key matches.
	KeyPatterns []string
	// ValuePatterns mask matching substrings of recorded utterances and string metadata.
	ValuePatterns []string
}

// DefaultPIIConfig masks names and phone numbers.
func DefaultPIIConfig() PIIConfig {
	return PIIConfig{
		KeyPatterns:   []string{`(?i)phone`, `(?i)mobile`, `(?i)name`, `(?i)email`},
		ValuePatterns: []string{`\+?\d[\d\s-]{7,}\d`, `[\w.+-]+@[\w-]+\.[\w.]+`},
	}
}

type piiMiddleware struct {
	next   ports.StateStore
	keys   []*regexp.Regexp
	values []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks PII on Save. Load is untouched.
func NewPIIMiddleware(cfg PIIConfig) (Middleware, error) {
	keys, err := compileAll(cfg.KeyPatterns)
	if err != nil {
		return nil, fmt.Errorf("invalid key pattern: %w", err)
	}
	values, err := compileAll(cfg.ValuePatterns)
	if err != nil {
		return nil, fmt.Errorf("invalid value pattern: %w", err)
	}
	return func(next ports.StateStore) ports.StateStore {
		return &piiMiddleware{next: next, keys: keys, values: values}
	}, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

func (m *piiMiddleware) Save(ctx context.Context, sessionID string, state *domain.CallState) error {
	// Work on a copy: the caller keeps driving the unmasked state.
	cloned := state.Clone()
	cloned.Metadata = deepCopyMap(state.Metadata)
	m.maskMap(cloned.Metadata)

	for i, rec := range cloned.Results {
		switch r := rec.Result.(type) {
		case domain.TurnResult:
			r.Utterance = m.maskText(r.Utterance)
			cloned.Results[i].Result = r
		case map[string]any:
			cp := deepCopyMap(r)
			m.maskMap(cp)
			cloned.Results[i].Result = cp
		}
	}
	return m.next.Save(ctx, sessionID, cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, sessionID string) (*domain.CallState, error) {
	return m.next.Load(ctx, sessionID)
}

func (m *piiMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *piiMiddleware) maskText(s string) string {
	for _, re := range m.values {
		s = re.ReplaceAllString(s, mask)
	}
	return s
}

func (m *piiMiddleware) maskMap(data map[string]any) {
	for k, v := range data {
		if m.sensitiveKey(k) {
			data[k] = mask
			continue
		}
		switch val := v.(type) {
		case map[string]any:
			m.maskMap(val)
		case string:
			data[k] = m.maskText(val)
		}
	}
}

func (m *piiMiddleware) sensitiveKey(k string) bool {
	for _, p := range m.keys {
		if p.MatchString(k) {
			return true
		}
	}
	return false
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(sub)
		} else {
			out[k] = v
		}
	}
	return out
}
