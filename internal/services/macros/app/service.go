// Package app runs the table macros against their collaborators: dice,
// the chat log, and the character store.
package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/louisbranch/macrotable/internal/platform/errors"
	"github.com/louisbranch/macrotable/internal/platform/grpc/pagination"
	"github.com/louisbranch/macrotable/internal/platform/i18n/catalog"
	"github.com/louisbranch/macrotable/internal/random"
	"github.com/louisbranch/macrotable/internal/server/dice"
	"github.com/louisbranch/macrotable/internal/services/macros/render"
	"github.com/louisbranch/macrotable/internal/services/macros/storage"
	"github.com/louisbranch/macrotable/internal/systems/pf2e/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/louisbranch/macrotable/internal/services/macros/app"

// Roller rolls the dice used by the macros.
type Roller interface {
	RollD20(seed int64) dice.CheckRoll
	RollFormula(request dice.FormulaRequest) (dice.FormulaResult, error)
}

// SeedFunc resolves the seed for a roll. A nil requested seed asks for a fresh one.
type SeedFunc func(requested *int64) (int64, random.SeedSource, error)

// RollHistory finds a user's most recent roll in a table.
type RollHistory interface {
	LastRoll(ctx context.Context, tableID, userID string) (storage.Message, error)
}

// ChatSink posts messages to a table's chat log and returns them as stored.
type ChatSink interface {
	Post(ctx context.Context, msg storage.Message) (storage.Message, error)
}

// Actor is the character a macro reads abilities from.
type Actor struct {
	ID          string
	Name        string
	StrengthMod int
}

// CharacterResolver finds the actor for a user. An empty characterID falls
// back to the user's assigned character.
type CharacterResolver interface {
	ResolveStrength(ctx context.Context, tableID, userID, characterID string) (Actor, error)
}

// Deps wires a Service.
type Deps struct {
	Roller  Roller
	Seeds   SeedFunc
	History RollHistory
	Sink    ChatSink
	Actors  CharacterResolver
	// Characters and Log back the character and history operations. Either
	// may be nil when the host does not expose them.
	Characters storage.CharacterStore
	Log        storage.MessageStore
}

// Service runs macros for tables.
type Service struct {
	roller     Roller
	seeds      SeedFunc
	history    RollHistory
	sink       ChatSink
	actors     CharacterResolver
	characters storage.CharacterStore
	log        storage.MessageStore
	tracer     trace.Tracer
}

// NewService builds a Service. Roller and Seeds default to the dice package
// and crypto seeds.
func NewService(deps Deps) (*Service, error) {
	if deps.History == nil {
		return nil, errors.New("roll history is required")
	}
	if deps.Sink == nil {
		return nil, errors.New("chat sink is required")
	}
	if deps.Actors == nil {
		return nil, errors.New("character resolver is required")
	}
	if deps.Roller == nil {
		deps.Roller = DiceRoller{}
	}
	if deps.Seeds == nil {
		deps.Seeds = random.ResolveSeed
	}
	return &Service{
		roller:     deps.Roller,
		seeds:      deps.Seeds,
		history:    deps.History,
		sink:       deps.Sink,
		actors:     deps.Actors,
		characters: deps.Characters,
		log:        deps.Log,
		tracer:     otel.Tracer(tracerName),
	}, nil
}

// Store is the persistence a store-backed service needs.
type Store interface {
	storage.MessageStore
	storage.CharacterStore
}

// NewStoreBackedService wires a Service whose history, sink and characters
// all live in store. The returned sink accepts broadcast listeners.
func NewStoreBackedService(store Store) (*Service, *PersistingSink, error) {
	if store == nil {
		return nil, nil, errors.New("store is required")
	}
	sink := NewPersistingSink(store)
	service, err := NewService(Deps{
		History:    store,
		Sink:       sink,
		Actors:     NewStoreCharacterResolver(store),
		Characters: store,
		Log:        store,
	})
	if err != nil {
		return nil, nil, err
	}
	return service, sink, nil
}

// DiceRoller rolls with the dice package.
type DiceRoller struct{}

// RollD20 rolls one d20.
func (DiceRoller) RollD20(seed int64) dice.CheckRoll {
	return dice.RollD20(seed)
}

// RollFormula rolls an NdM+K formula.
func (DiceRoller) RollFormula(request dice.FormulaRequest) (dice.FormulaResult, error) {
	return dice.RollFormula(request)
}

// CounteractCheckRequest carries the Counteract Check inputs.
type CounteractCheckRequest struct {
	TableID  string
	UserID   string
	Modifier int
	Bonus    int
	DC       int
	YourRank int
	OppRank  int
	// Secret posts the roll and the card to GMs only.
	Secret bool
	// UseLastRoll reuses the total of the user's most recent roll instead of
	// rolling a new d20.
	UseLastRoll bool
	Seed        *int64
	Locale      string
	// ClientMessageID makes retries idempotent.
	ClientMessageID string
}

// CounteractCheckResult is the outcome of a Counteract Check.
type CounteractCheckResult struct {
	Input  domain.CounteractInput
	Result domain.CounteractResult
	// Base is the fresh d20 or the reused roll's total.
	Base       int
	Seed       int64
	SeedSource random.SeedSource
	UsedLast   bool
	Breakdown  string
	Text       string
	Locale     string
	// RollMessage is set when a fresh roll was posted.
	RollMessage *storage.Message
	CardMessage storage.Message
}

// CounteractCheck rolls or reuses a d20, evaluates the counteract rules and
// posts the result card.
func (s *Service) CounteractCheck(ctx context.Context, req CounteractCheckRequest) (CounteractCheckResult, error) {
	ctx, span := s.tracer.Start(ctx, "macros.CounteractCheck", trace.WithAttributes(
		attribute.String("macrotable.table_id", req.TableID),
		attribute.Bool("macrotable.use_last_roll", req.UseLastRoll),
		attribute.Bool("macrotable.secret", req.Secret),
	))
	defer span.End()

	result, err := s.counteractCheck(ctx, req)
	if err != nil {
		recordError(span, err)
		return CounteractCheckResult{}, err
	}
	span.SetAttributes(
		attribute.String("macrotable.degree", result.Result.Degree.Code()),
		attribute.Bool("macrotable.counteracted", result.Result.Counteracted),
	)
	return result, nil
}

func (s *Service) counteractCheck(ctx context.Context, req CounteractCheckRequest) (CounteractCheckResult, error) {
	tableID, userID, err := requireIDs(req.TableID, req.UserID)
	if err != nil {
		return CounteractCheckResult{}, err
	}
	locale := catalog.Default().MatchLocale(req.Locale)
	loc := render.NewLocalizer(locale)

	result := CounteractCheckResult{Locale: locale, UsedLast: req.UseLastRoll}
	if req.UseLastRoll {
		last, err := s.history.LastRoll(ctx, tableID, userID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return CounteractCheckResult{}, apperrors.New(apperrors.CodeNoPreviousRoll, "no previous roll for user")
			}
			return CounteractCheckResult{}, fmt.Errorf("load last roll: %w", err)
		}
		result.Base = last.RollTotal
	} else {
		seed, source, err := s.seeds(req.Seed)
		if err != nil {
			return CounteractCheckResult{}, apperrors.Wrap(apperrors.CodeSeedUnavailable, "resolve roll seed", err)
		}
		roll := s.roller.RollD20(seed)
		posted, err := s.sink.Post(ctx, storage.Message{
			TableID:         tableID,
			UserID:          userID,
			ClientMessageID: suffixClientID(req.ClientMessageID, "roll"),
			Kind:            storage.MessageKindRoll,
			Flavor:          loc.Sprintf("macros.counteract.roll_flavor"),
			Body:            "1d20 = " + strconv.Itoa(roll.Die),
			DieResult:       roll.Die,
			RollTotal:       roll.Die,
			Whisper:         req.Secret,
			Blind:           req.Secret,
		})
		if err != nil {
			return CounteractCheckResult{}, fmt.Errorf("post counteract roll: %w", err)
		}
		// A retried request gets the die stored by the first attempt.
		result.Base = posted.DieResult
		result.Seed = seed
		result.SeedSource = source
		result.RollMessage = &posted
	}

	input := domain.CounteractInput{
		RollTotal: result.Base + req.Modifier + req.Bonus,
		DC:        req.DC,
		YourRank:  req.YourRank,
		OppRank:   req.OppRank,
	}
	result.Input = input
	result.Result = domain.EvaluateCounteract(input)
	result.Breakdown = render.RollBreakdown(result.Base, req.Modifier, req.Bonus, input.RollTotal)

	card := render.CounteractCard{
		Base:         result.Base,
		Modifier:     req.Modifier,
		Bonus:        req.Bonus,
		Total:        input.RollTotal,
		DC:           req.DC,
		YourRank:     req.YourRank,
		OppRank:      req.OppRank,
		Degree:       result.Result.Degree,
		Counteracted: result.Result.Counteracted,
		Secret:       req.Secret,
	}
	body, err := render.ToString(ctx, render.CounteractHTML(loc, card))
	if err != nil {
		return CounteractCheckResult{}, fmt.Errorf("render counteract card: %w", err)
	}
	result.Text = render.CounteractText(loc, card)

	posted, err := s.sink.Post(ctx, storage.Message{
		TableID:         tableID,
		UserID:          userID,
		ClientMessageID: suffixClientID(req.ClientMessageID, "card"),
		Kind:            storage.MessageKindCard,
		Flavor:          loc.Sprintf("macros.counteract.title"),
		Body:            body,
		Whisper:         req.Secret,
		Blind:           req.Secret,
	})
	if err != nil {
		return CounteractCheckResult{}, fmt.Errorf("post counteract card: %w", err)
	}
	result.CardMessage = posted
	return result, nil
}

// WhirlingThrowRequest carries the Whirling Throw inputs.
type WhirlingThrowRequest struct {
	TableID string
	UserID  string
	// CharacterID is the controlled character. Empty uses the user's
	// assigned character.
	CharacterID string
	Locale      string
	// RollDamage rolls the damage formula and attaches the total to the card.
	RollDamage      bool
	Seed            *int64
	ClientMessageID string
}

// WhirlingThrowResult is the outcome of a Whirling Throw.
type WhirlingThrowResult struct {
	Actor  Actor
	Throw  domain.WhirlingThrowResult
	Damage *dice.FormulaResult
	Text   string
	Locale string
	Card   storage.Message
}

// WhirlingThrow reads the actor's Strength modifier and posts the distance
// and damage card.
func (s *Service) WhirlingThrow(ctx context.Context, req WhirlingThrowRequest) (WhirlingThrowResult, error) {
	ctx, span := s.tracer.Start(ctx, "macros.WhirlingThrow", trace.WithAttributes(
		attribute.String("macrotable.table_id", req.TableID),
		attribute.Bool("macrotable.roll_damage", req.RollDamage),
	))
	defer span.End()

	result, err := s.whirlingThrow(ctx, req)
	if err != nil {
		recordError(span, err)
		return WhirlingThrowResult{}, err
	}
	span.SetAttributes(attribute.Int("macrotable.distance_feet", result.Throw.DistanceFeet))
	return result, nil
}

func (s *Service) whirlingThrow(ctx context.Context, req WhirlingThrowRequest) (WhirlingThrowResult, error) {
	tableID, userID, err := requireIDs(req.TableID, req.UserID)
	if err != nil {
		return WhirlingThrowResult{}, err
	}
	locale := catalog.Default().MatchLocale(req.Locale)
	loc := render.NewLocalizer(locale)

	actor, err := s.actors.ResolveStrength(ctx, tableID, userID, strings.TrimSpace(req.CharacterID))
	if err != nil {
		return WhirlingThrowResult{}, err
	}
	throw := domain.EvaluateWhirlingThrow(actor.StrengthMod)
	result := WhirlingThrowResult{Actor: actor, Throw: throw, Locale: locale}

	card := render.WhirlingThrowCard{ActorName: actor.Name, Result: throw}
	if req.RollDamage {
		seed, _, err := s.seeds(req.Seed)
		if err != nil {
			return WhirlingThrowResult{}, apperrors.Wrap(apperrors.CodeSeedUnavailable, "resolve damage seed", err)
		}
		count, sides, modifier := throw.DamageDice()
		damage, err := s.roller.RollFormula(dice.FormulaRequest{
			Count:    count,
			Sides:    sides,
			Modifier: modifier,
			Seed:     seed,
		})
		if err != nil {
			return WhirlingThrowResult{}, diceError(err)
		}
		result.Damage = &damage
		card.Rolled = true
		card.RolledTotal = damage.Total
	}

	body, err := render.ToString(ctx, render.WhirlingThrowHTML(loc, card))
	if err != nil {
		return WhirlingThrowResult{}, fmt.Errorf("render whirling throw card: %w", err)
	}
	result.Text = render.WhirlingThrowText(loc, card)

	msg := storage.Message{
		TableID:         tableID,
		UserID:          userID,
		ClientMessageID: strings.TrimSpace(req.ClientMessageID),
		Kind:            storage.MessageKindCard,
		Flavor:          loc.Sprintf("macros.whirling_throw.title"),
		Body:            body,
	}
	if result.Damage != nil {
		msg.RollTotal = result.Damage.Total
	}
	posted, err := s.sink.Post(ctx, msg)
	if err != nil {
		return WhirlingThrowResult{}, fmt.Errorf("post whirling throw card: %w", err)
	}
	result.Card = posted
	return result, nil
}

// PostChatRequest carries a plain chat line.
type PostChatRequest struct {
	TableID         string
	UserID          string
	Body            string
	Whisper         bool
	ClientMessageID string
}

// PostChat posts a text message to the table log.
func (s *Service) PostChat(ctx context.Context, req PostChatRequest) (storage.Message, error) {
	tableID, userID, err := requireIDs(req.TableID, req.UserID)
	if err != nil {
		return storage.Message{}, err
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return storage.Message{}, apperrors.WithMetadata(apperrors.CodeInvalidArgument, "message body is required",
			map[string]string{"Reason": "message body is required"})
	}
	return s.sink.Post(ctx, storage.Message{
		TableID:         tableID,
		UserID:          userID,
		ClientMessageID: strings.TrimSpace(req.ClientMessageID),
		Kind:            storage.MessageKindText,
		Body:            body,
		Whisper:         req.Whisper,
	})
}

// PutCharacterRequest creates or updates a character sheet.
type PutCharacterRequest struct {
	TableID     string
	UserID      string
	CharacterID string
	Name        string
	StrengthMod int
	Assigned    bool
}

// PutCharacter stores a character owned by the requesting user.
func (s *Service) PutCharacter(ctx context.Context, req PutCharacterRequest) (storage.Character, error) {
	tableID, userID, err := requireIDs(req.TableID, req.UserID)
	if err != nil {
		return storage.Character{}, err
	}
	if s.characters == nil {
		return storage.Character{}, errors.New("character store is not configured")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return storage.Character{}, apperrors.New(apperrors.CodeCharacterNameEmpty, "character name is required")
	}
	if !domain.StrengthModInRange(req.StrengthMod) {
		return storage.Character{}, strengthModError(req.StrengthMod)
	}
	stored, err := s.characters.PutCharacter(ctx, storage.Character{
		ID:          strings.TrimSpace(req.CharacterID),
		TableID:     tableID,
		OwnerUserID: userID,
		Name:        name,
		StrengthMod: req.StrengthMod,
		Assigned:    req.Assigned,
	})
	if errors.Is(err, storage.ErrNotOwner) {
		return storage.Character{}, apperrors.WithMetadata(
			apperrors.CodeCharacterNotOwned,
			"character belongs to another user",
			map[string]string{"CharacterID": req.CharacterID},
		)
	}
	if err != nil {
		return storage.Character{}, fmt.Errorf("put character: %w", err)
	}
	return stored, nil
}

// ListCharacters returns a table's characters.
func (s *Service) ListCharacters(ctx context.Context, tableID string) ([]storage.Character, error) {
	tableID = strings.TrimSpace(tableID)
	if tableID == "" {
		return nil, apperrors.New(apperrors.CodeTableIDRequired, "table id is required")
	}
	if s.characters == nil {
		return nil, errors.New("character store is not configured")
	}
	return s.characters.ListCharacters(ctx, tableID)
}

// ListHistoryRequest selects a page of a table's log.
type ListHistoryRequest struct {
	TableID   string
	Filter    string
	PageSize  int32
	PageToken string
}

// ListHistory returns a filtered page of a table's log, oldest first.
func (s *Service) ListHistory(ctx context.Context, req ListHistoryRequest) (storage.MessagePage, error) {
	tableID := strings.TrimSpace(req.TableID)
	if tableID == "" {
		return storage.MessagePage{}, apperrors.New(apperrors.CodeTableIDRequired, "table id is required")
	}
	if s.log == nil {
		return storage.MessagePage{}, errors.New("message log is not configured")
	}
	page, err := s.log.ListMessages(ctx, storage.MessageQuery{
		TableID:   tableID,
		Filter:    req.Filter,
		PageSize:  pagination.History.Size(req.PageSize),
		PageToken: req.PageToken,
	})
	switch {
	case err == nil:
		return page, nil
	case errors.Is(err, storage.ErrInvalidFilter):
		return storage.MessagePage{}, apperrors.WrapWithMetadata(apperrors.CodeFilterInvalid, "invalid history filter",
			map[string]string{"Reason": err.Error()}, err)
	case errors.Is(err, storage.ErrInvalidPageToken):
		return storage.MessagePage{}, apperrors.Wrap(apperrors.CodePageTokenBad, "invalid page token", err)
	default:
		return storage.MessagePage{}, fmt.Errorf("list history: %w", err)
	}
}

// HistoryBefore returns up to limit messages older than beforeSequenceID.
func (s *Service) HistoryBefore(ctx context.Context, tableID string, beforeSequenceID int64, limit int) ([]storage.Message, error) {
	tableID = strings.TrimSpace(tableID)
	if tableID == "" {
		return nil, apperrors.New(apperrors.CodeTableIDRequired, "table id is required")
	}
	if s.log == nil {
		return nil, errors.New("message log is not configured")
	}
	return s.log.MessagesBefore(ctx, tableID, beforeSequenceID, pagination.History.Size(int32(limit)))
}

func strengthModError(mod int) error {
	return apperrors.WithMetadata(apperrors.CodeStrengthModOutOfRange, "strength modifier out of range", map[string]string{
		"StrengthMod": strconv.Itoa(mod),
		"Min":         strconv.Itoa(-domain.MaxStrengthMod),
		"Max":         strconv.Itoa(domain.MaxStrengthMod),
	})
}

func requireIDs(tableID, userID string) (string, string, error) {
	tableID = strings.TrimSpace(tableID)
	if tableID == "" {
		return "", "", apperrors.New(apperrors.CodeTableIDRequired, "table id is required")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", "", apperrors.New(apperrors.CodeUserIDRequired, "user id is required")
	}
	return tableID, userID, nil
}

func suffixClientID(clientID, suffix string) string {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return ""
	}
	return clientID + ":" + suffix
}

func diceError(err error) error {
	switch {
	case errors.Is(err, dice.ErrMissingDice):
		return apperrors.Wrap(apperrors.CodeDiceMissing, "roll damage", err)
	case errors.Is(err, dice.ErrInvalidDiceSpec):
		return apperrors.Wrap(apperrors.CodeDiceInvalidSpec, "roll damage", err)
	default:
		return fmt.Errorf("roll damage: %w", err)
	}
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, string(apperrors.CodeOf(err)))
}
