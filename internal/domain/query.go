package domain

import (
	"errors"
	"strings"
)

// MaxQueryLen bounds accepted query text.
const MaxQueryLen = 4096

// Turn is a single prior exchange in a conversation.
type Turn struct {
	Role    string // "user" or "assistant"
	Content string
}

// Query is one immutable user request: raw text plus the resolved requester
// identity and access tier supplied by the auth layer.
type Query struct {
	text           string
	language       string
	owner          string
	tier           int
	conversationID string
	history        []Turn
}

// NewQuery validates and creates a query.
func NewQuery(
	text, language, owner string, tier int,
	conversationID string, history []Turn,
) (Query, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Query{}, errors.New("query text is required")
	}
	if len(text) > MaxQueryLen {
		return Query{}, errors.New("query text too long")
	}
	if tier < 0 {
		return Query{}, errors.New("tier must be non-negative")
	}
	return Query{
		text:           text,
		language:       language,
		owner:          owner,
		tier:           tier,
		conversationID: conversationID,
		history:        history,
	}, nil
}

// Text returns the raw query text.
func (q *Query) Text() string { return q.text }

// Language returns the detected language code ("" if unknown).
func (q *Query) Language() string { return q.language }

// Owner returns the requester identity.
func (q *Query) Owner() string { return q.owner }

// Tier returns the requester access tier.
func (q *Query) Tier() int { return q.tier }

// ConversationID returns the conversation identifier ("" for one-shot queries).
func (q *Query) ConversationID() string { return q.conversationID }

// History returns prior turns, oldest first.
func (q *Query) History() []Turn { return q.history }
