package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/labflow/pkg/domain"
	"github.com/aretw0/labflow/pkg/ports"
)

const redacted = "***"

type redactMiddleware struct {
	ports.StateStore
	patterns []*regexp.Regexp
}

// Redact masks the parts of audit comments matching any of the patterns before
// they reach the store. Patterns are compiled once and must be valid.
func Redact(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.StateStore) ports.StateStore {
		return &redactMiddleware{StateStore: next, patterns: patterns}
	}
}

func (m *redactMiddleware) SetState(ctx context.Context, uid string, axis domain.Axis, state domain.StateID, entry domain.HistoryEntry) error {
	for _, p := range m.patterns {
		entry.Comment = p.ReplaceAllString(entry.Comment, redacted)
	}
	return m.StateStore.SetState(ctx, uid, axis, state, entry)
}
