// Package storage defines persistence contracts for table chat logs and characters.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidFilter indicates a history filter could not be parsed or translated.
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrInvalidPageToken indicates a page token was not produced by this store.
	ErrInvalidPageToken = errors.New("invalid page token")
	// ErrNotOwner indicates a character id is held by another user.
	ErrNotOwner = errors.New("character owned by another user")
)

// MessageKind classifies chat log entries.
type MessageKind string

const (
	MessageKindText   MessageKind = "text"
	MessageKindRoll   MessageKind = "roll"
	MessageKindCard   MessageKind = "card"
	MessageKindSystem MessageKind = "system"
)

// Valid reports whether k is a known kind.
func (k MessageKind) Valid() bool {
	switch k {
	case MessageKindText, MessageKindRoll, MessageKindCard, MessageKindSystem:
		return true
	}
	return false
}

// Message is one entry in a table's chat log.
//
// Roll messages carry the natural die in DieResult and the rolled total in
// RollTotal. Whisper marks GM-only delivery; Blind hides the entry from its
// author as well once rendered by clients that honor it.
type Message struct {
	ID              string
	TableID         string
	SequenceID      int64
	UserID          string
	ClientMessageID string
	Kind            MessageKind
	Flavor          string
	Body            string
	DieResult       int
	RollTotal       int
	Whisper         bool
	Blind           bool
	SentAt          time.Time
}

// MessageQuery selects a page of one table's log in sequence order.
type MessageQuery struct {
	TableID string
	// Filter is an AIP-160 expression over kind, user_id, flavor, whisper,
	// die_result, roll_total and sent_at.
	Filter    string
	PageSize  int
	PageToken string
}

// MessagePage stores one page of log entries.
type MessagePage struct {
	Messages      []Message
	NextPageToken string
}

// MessageStore persists table chat logs.
type MessageStore interface {
	// AppendMessage assigns the next sequence id and stores msg. When msg
	// repeats a client message id already stored for the same table and user,
	// the stored message is returned with duplicate set.
	AppendMessage(ctx context.Context, msg Message) (stored Message, duplicate bool, err error)
	// LastRoll returns the user's most recent roll message in the table.
	LastRoll(ctx context.Context, tableID, userID string) (Message, error)
	// MessagesBefore returns up to limit messages with sequence ids below
	// beforeSequenceID, oldest first. A non-positive beforeSequenceID reads
	// from the end of the log.
	MessagesBefore(ctx context.Context, tableID string, beforeSequenceID int64, limit int) ([]Message, error)
	ListMessages(ctx context.Context, query MessageQuery) (MessagePage, error)
}

// Character is a table participant's sheet, reduced to what the macros read.
type Character struct {
	ID          string
	TableID     string
	OwnerUserID string
	Name        string
	StrengthMod int
	// Assigned marks the owner's default character for the table. At most one
	// character per owner and table is assigned.
	Assigned  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CharacterStore persists characters.
type CharacterStore interface {
	PutCharacter(ctx context.Context, character Character) (Character, error)
	GetCharacter(ctx context.Context, tableID, characterID string) (Character, error)
	AssignedCharacter(ctx context.Context, tableID, userID string) (Character, error)
	ListCharacters(ctx context.Context, tableID string) ([]Character, error)
}
