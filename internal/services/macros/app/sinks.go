package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	apperrors "github.com/louisbranch/macrotable/internal/platform/errors"
	"github.com/louisbranch/macrotable/internal/services/macros/storage"
)

// Broadcaster delivers stored messages to connected clients.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg storage.Message)
}

// PersistingSink appends messages to the store and fans new ones out to
// listeners. Duplicates are returned as stored without a second broadcast.
type PersistingSink struct {
	store storage.MessageStore

	mu        sync.RWMutex
	listeners []Broadcaster
}

// NewPersistingSink returns a sink backed by store.
func NewPersistingSink(store storage.MessageStore) *PersistingSink {
	return &PersistingSink{store: store}
}

// AddListener registers a broadcaster for newly stored messages.
func (s *PersistingSink) AddListener(listener Broadcaster) {
	if s == nil || listener == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, listener)
	s.mu.Unlock()
}

// Post stores msg and broadcasts it when it is new.
func (s *PersistingSink) Post(ctx context.Context, msg storage.Message) (storage.Message, error) {
	if s == nil || s.store == nil {
		return storage.Message{}, errors.New("message store is not configured")
	}
	stored, duplicate, err := s.store.AppendMessage(ctx, msg)
	if err != nil {
		return storage.Message{}, fmt.Errorf("append message: %w", err)
	}
	if duplicate {
		return stored, nil
	}

	s.mu.RLock()
	listeners := append([]Broadcaster(nil), s.listeners...)
	s.mu.RUnlock()
	for _, listener := range listeners {
		listener.Broadcast(ctx, stored)
	}
	return stored, nil
}

// StoreCharacterResolver resolves actors from a character store.
type StoreCharacterResolver struct {
	store storage.CharacterStore
}

// NewStoreCharacterResolver returns a resolver backed by store.
func NewStoreCharacterResolver(store storage.CharacterStore) *StoreCharacterResolver {
	return &StoreCharacterResolver{store: store}
}

// ResolveStrength returns the named character, or the user's assigned one
// when characterID is empty.
func (r *StoreCharacterResolver) ResolveStrength(ctx context.Context, tableID, userID, characterID string) (Actor, error) {
	if r == nil || r.store == nil {
		return Actor{}, errors.New("character store is not configured")
	}

	var (
		character storage.Character
		err       error
	)
	if characterID != "" {
		character, err = r.store.GetCharacter(ctx, tableID, characterID)
		if errors.Is(err, storage.ErrNotFound) {
			return Actor{}, apperrors.WithMetadata(
				apperrors.CodeCharacterNotFound,
				"character not found",
				map[string]string{"CharacterID": characterID},
			)
		}
	} else {
		character, err = r.store.AssignedCharacter(ctx, tableID, userID)
		if errors.Is(err, storage.ErrNotFound) {
			return Actor{}, apperrors.New(apperrors.CodeActorNotFound, "no actor selected and no assigned character")
		}
	}
	if err != nil {
		return Actor{}, fmt.Errorf("resolve character: %w", err)
	}
	return Actor{ID: character.ID, Name: character.Name, StrengthMod: character.StrengthMod}, nil
}
