package conversation

import (
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxTitleLength is the longest title accepted by Rename, in characters.
const MaxTitleLength = 100

var (
	ErrNotFound     = errors.New("chat not found")
	ErrTitleEmpty   = errors.New("title cannot be empty")
	ErrTitleTooLong = errors.New("title is too long")
)

// NewState returns an empty session state.
func NewState() *State {
	return &State{Chats: make(map[string]Conversation)}
}

// Dirty reports whether the state was mutated since it was loaded.
func (s *State) Dirty() bool {
	return s.dirty
}

// MarkDirty flags the state for persistence.
func (s *State) MarkDirty() {
	s.dirty = true
}

// MarkClean is called by stores after a successful save.
func (s *State) MarkClean() {
	s.dirty = false
}

// Get returns the conversation with the given id.
func (s *State) Get(id string) (Conversation, bool) {
	if id == "" {
		return Conversation{}, false
	}
	conv, ok := s.Chats[id]
	return conv, ok
}

// Current returns the active conversation, if any.
func (s *State) Current() (Conversation, bool) {
	return s.Get(s.CurrentChatID)
}

// ResolveOrCreate returns the current conversation. When there is none, it allocates
// a fresh one seeded with the system message; the new conversation is NOT stored yet,
// so the caller can title it first and then call Put.
func (s *State) ResolveOrCreate(systemPrompt string, now time.Time) (Conversation, bool) {
	if conv, ok := s.Current(); ok {
		return conv, false
	}

	id := uuid.New().String()
	for {
		if _, taken := s.Chats[id]; !taken {
			break
		}
		id = uuid.New().String()
	}

	return Conversation{
		ID:        id,
		History:   []Message{SystemMessage(systemPrompt)},
		CreatedAt: now,
	}, true
}

// Put stores conv and makes it the current conversation.
func (s *State) Put(conv Conversation) {
	if s.Chats == nil {
		s.Chats = make(map[string]Conversation)
	}
	s.Chats[conv.ID] = conv
	s.CurrentChatID = conv.ID
	s.dirty = true
}

// Load returns the conversation with its history repaired, makes it current and
// persists the repair if one was needed.
func (s *State) Load(id, systemPrompt string) (Conversation, error) {
	conv, ok := s.Get(id)
	if !ok {
		return Conversation{}, ErrNotFound
	}

	if history, repaired := Repair(conv.History, systemPrompt); repaired {
		conv.History = history
		s.Chats[id] = conv
		s.dirty = true
	}

	if s.CurrentChatID != id {
		s.CurrentChatID = id
		s.dirty = true
	}

	return conv, nil
}

// Rename overwrites the title of a conversation. The title is trimmed first.
func (s *State) Rename(id, title string) (string, error) {
	conv, ok := s.Get(id)
	if !ok {
		return "", ErrNotFound
	}

	title = strings.TrimSpace(title)
	if title == "" {
		return "", ErrTitleEmpty
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", ErrTitleTooLong
	}

	conv.Title = title
	s.Chats[id] = conv
	s.dirty = true
	return title, nil
}

// Delete removes a conversation, clearing the current pointer if it was active.
func (s *State) Delete(id string) error {
	if _, ok := s.Get(id); !ok {
		return ErrNotFound
	}

	delete(s.Chats, id)
	if s.CurrentChatID == id {
		s.CurrentChatID = ""
	}
	s.dirty = true
	return nil
}

// ClearCurrent starts a new chat flow: the next message creates a conversation.
func (s *State) ClearCurrent() {
	if s.CurrentChatID != "" {
		s.CurrentChatID = ""
		s.dirty = true
	}
}

// DropDanglingCurrent clears a current pointer that references a missing conversation.
func (s *State) DropDanglingCurrent() {
	if s.CurrentChatID == "" {
		return
	}
	if _, ok := s.Chats[s.CurrentChatID]; !ok {
		s.CurrentChatID = ""
		s.dirty = true
	}
}

// SetCredentials replaces both provider keys. Empty values remove a key.
func (s *State) SetCredentials(creds Credentials) {
	if s.OpenAIAPIKey != creds.OpenAIAPIKey || s.GoogleAPIKey != creds.GoogleAPIKey {
		s.dirty = true
	}
	s.OpenAIAPIKey = creds.OpenAIAPIKey
	s.GoogleAPIKey = creds.GoogleAPIKey
}

// Credentials returns the provider keys held by the session.
func (s *State) Credentials() Credentials {
	return Credentials{OpenAIAPIKey: s.OpenAIAPIKey, GoogleAPIKey: s.GoogleAPIKey}
}

// Summaries lists conversations newest first.
func (s *State) Summaries() []Summary {
	convs := make([]Conversation, 0, len(s.Chats))
	for _, conv := range s.Chats {
		convs = append(convs, conv)
	}
	sort.Slice(convs, func(i, j int) bool {
		if convs[i].CreatedAt.Equal(convs[j].CreatedAt) {
			return convs[i].ID < convs[j].ID
		}
		return convs[i].CreatedAt.After(convs[j].CreatedAt)
	})

	out := make([]Summary, 0, len(convs))
	for _, conv := range convs {
		out = append(out, Summary{ID: conv.ID, Title: conv.Title})
	}
	return out
}

// Clone returns a deep copy, so stores never share history slices with handlers.
func (s *State) Clone() *State {
	out := &State{
		Chats:         make(map[string]Conversation, len(s.Chats)),
		CurrentChatID: s.CurrentChatID,
		OpenAIAPIKey:  s.OpenAIAPIKey,
		GoogleAPIKey:  s.GoogleAPIKey,
	}
	for id, conv := range s.Chats {
		conv.History = append([]Message(nil), conv.History...)
		out.Chats[id] = conv
	}
	return out
}
