// Package macros exposes the table macros over gRPC.
package macros

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/louisbranch/macrotable/internal/platform/errors"
	"github.com/louisbranch/macrotable/internal/platform/errors/i18n"
	grpcmeta "github.com/louisbranch/macrotable/internal/services/macros/api/grpc/metadata"
	"github.com/louisbranch/macrotable/internal/services/macros/app"
	"github.com/louisbranch/macrotable/internal/services/macros/storage"
	"github.com/louisbranch/macrotable/internal/systems/pf2e/domain"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Macros is the application surface the gRPC service calls.
type Macros interface {
	CounteractCheck(ctx context.Context, req app.CounteractCheckRequest) (app.CounteractCheckResult, error)
	WhirlingThrow(ctx context.Context, req app.WhirlingThrowRequest) (app.WhirlingThrowResult, error)
	PutCharacter(ctx context.Context, req app.PutCharacterRequest) (storage.Character, error)
	ListHistory(ctx context.Context, req app.ListHistoryRequest) (storage.MessagePage, error)
}

// Service implements MacroServer.
type Service struct {
	macros Macros
}

// NewService builds the gRPC macro service.
func NewService(macros Macros) *Service {
	return &Service{macros: macros}
}

var _ MacroServer = (*Service)(nil)

// CounteractCheck rolls (or reuses) a counteract check and posts its card.
func (s *Service) CounteractCheck(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "counteract check request is required")
	}
	if s.macros == nil {
		return nil, status.Error(codes.Internal, "macro service is not configured")
	}
	fields := newFieldReader(in)
	locale := requestLocale(ctx, fields)
	req := app.CounteractCheckRequest{
		TableID:         fields.string("table_id"),
		UserID:          requestUserID(ctx, fields),
		Modifier:        fields.int("modifier"),
		Bonus:           fields.int("bonus"),
		DC:              fields.int("dc"),
		YourRank:        fields.int("your_rank"),
		OppRank:         fields.int("opp_rank"),
		Secret:          fields.bool("secret"),
		UseLastRoll:     fields.bool("use_last_roll"),
		Seed:            fields.seed("seed"),
		Locale:          locale,
		ClientMessageID: fields.string("client_message_id"),
	}
	if err := fields.err(); err != nil {
		return nil, handleDomainError(err, locale)
	}

	result, err := s.macros.CounteractCheck(ctx, req)
	if err != nil {
		return nil, handleDomainError(err, locale)
	}

	out := map[string]any{
		"degree_code":    result.Result.Degree.Code(),
		"degree":         result.Result.Degree.String(),
		"counteracted":   result.Result.Counteracted,
		"roll_total":     result.Input.RollTotal,
		"base":           result.Base,
		"used_last_roll": result.UsedLast,
		"breakdown":      result.Breakdown,
		"text":           result.Text,
		"locale":         result.Locale,
		"card":           messageValue(result.CardMessage),
	}
	if !result.UsedLast {
		out["seed"] = strconv.FormatInt(result.Seed, 10)
		out["seed_source"] = string(result.SeedSource)
	}
	if result.RollMessage != nil {
		out["roll"] = messageValue(*result.RollMessage)
	}
	return newStruct(out)
}

// WhirlingThrow posts the Whirling Throw card for the caller's actor.
func (s *Service) WhirlingThrow(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "whirling throw request is required")
	}
	if s.macros == nil {
		return nil, status.Error(codes.Internal, "macro service is not configured")
	}
	fields := newFieldReader(in)
	locale := requestLocale(ctx, fields)
	req := app.WhirlingThrowRequest{
		TableID:         fields.string("table_id"),
		UserID:          requestUserID(ctx, fields),
		CharacterID:     fields.string("character_id"),
		Locale:          locale,
		RollDamage:      fields.bool("roll_damage"),
		Seed:            fields.seed("seed"),
		ClientMessageID: fields.string("client_message_id"),
	}
	if err := fields.err(); err != nil {
		return nil, handleDomainError(err, locale)
	}

	result, err := s.macros.WhirlingThrow(ctx, req)
	if err != nil {
		return nil, handleDomainError(err, locale)
	}

	out := map[string]any{
		"actor": map[string]any{
			"id":           result.Actor.ID,
			"name":         result.Actor.Name,
			"strength_mod": result.Actor.StrengthMod,
		},
		"distance_feet":  result.Throw.DistanceFeet,
		"dice_count":     result.Throw.DiceCount,
		"damage_formula": result.Throw.DamageFormula,
		"damage_syntax":  result.Throw.DamageSyntax,
		"text":           result.Text,
		"locale":         result.Locale,
		"card":           messageValue(result.Card),
	}
	if result.Damage != nil {
		rolls := make([]any, 0, len(result.Damage.Results))
		for _, value := range result.Damage.Results {
			rolls = append(rolls, value)
		}
		out["damage"] = map[string]any{
			"results":  rolls,
			"modifier": result.Damage.Modifier,
			"total":    result.Damage.Total,
		}
	}
	return newStruct(out)
}

// EvaluateCounteract applies the counteract rules to a known total.
func (s *Service) EvaluateCounteract(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "evaluate counteract request is required")
	}
	fields := newFieldReader(in)
	locale := requestLocale(ctx, fields)
	input := counteractInput(fields)
	if err := fields.err(); err != nil {
		return nil, handleDomainError(err, locale)
	}

	result := domain.EvaluateCounteract(input)
	return newStruct(map[string]any{
		"degree_code":   result.Degree.Code(),
		"degree":        result.Degree.String(),
		"counteracted":  result.Counteracted,
		"rules_version": domain.RulesVersion().RulesVersion,
	})
}

// ExplainCounteract evaluates a counteract check and lists each applied rule.
func (s *Service) ExplainCounteract(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "explain counteract request is required")
	}
	fields := newFieldReader(in)
	locale := requestLocale(ctx, fields)
	input := counteractInput(fields)
	if err := fields.err(); err != nil {
		return nil, handleDomainError(err, locale)
	}

	explanation := domain.ExplainCounteract(input)
	steps := make([]any, 0, len(explanation.Steps))
	for _, step := range explanation.Steps {
		steps = append(steps, map[string]any{
			"code":    step.Code,
			"message": step.Message,
			"data":    step.Data,
		})
	}
	return newStruct(map[string]any{
		"degree_code":      explanation.Degree.Code(),
		"degree":           explanation.Degree.String(),
		"counteracted":     explanation.Counteracted,
		"diff":             explanation.Diff,
		"base_degree_code": explanation.BaseDegree.Code(),
		"upgraded":         explanation.Upgraded,
		"rules_version":    explanation.RulesVersion,
		"steps":            steps,
	})
}

// PutCharacter creates or updates a character in a table.
func (s *Service) PutCharacter(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "put character request is required")
	}
	if s.macros == nil {
		return nil, status.Error(codes.Internal, "macro service is not configured")
	}
	fields := newFieldReader(in)
	locale := requestLocale(ctx, fields)
	req := app.PutCharacterRequest{
		TableID:     fields.string("table_id"),
		UserID:      requestUserID(ctx, fields),
		CharacterID: fields.string("character_id"),
		Name:        fields.string("name"),
		StrengthMod: fields.int("strength_mod"),
		Assigned:    fields.bool("assigned"),
	}
	if err := fields.err(); err != nil {
		return nil, handleDomainError(err, locale)
	}

	character, err := s.macros.PutCharacter(ctx, req)
	if err != nil {
		return nil, handleDomainError(err, locale)
	}
	return newStruct(map[string]any{"character": characterValue(character)})
}

// ListMessages pages through a table's log with an optional AIP-160 filter.
func (s *Service) ListMessages(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "list messages request is required")
	}
	if s.macros == nil {
		return nil, status.Error(codes.Internal, "macro service is not configured")
	}
	fields := newFieldReader(in)
	locale := requestLocale(ctx, fields)
	req := app.ListHistoryRequest{
		TableID:   fields.string("table_id"),
		Filter:    fields.string("filter"),
		PageSize:  int32(fields.int("page_size")),
		PageToken: fields.string("page_token"),
	}
	if err := fields.err(); err != nil {
		return nil, handleDomainError(err, locale)
	}

	page, err := s.macros.ListHistory(ctx, req)
	if err != nil {
		return nil, handleDomainError(err, locale)
	}
	messages := make([]any, 0, len(page.Messages))
	for _, msg := range page.Messages {
		messages = append(messages, messageValue(msg))
	}
	return newStruct(map[string]any{
		"messages":        messages,
		"next_page_token": page.NextPageToken,
	})
}

func counteractInput(fields *fieldReader) domain.CounteractInput {
	return domain.CounteractInput{
		RollTotal: fields.int("roll_total"),
		DC:        fields.int("dc"),
		YourRank:  fields.int("your_rank"),
		OppRank:   fields.int("opp_rank"),
	}
}

func requestUserID(ctx context.Context, fields *fieldReader) string {
	if userID := fields.string("user_id"); userID != "" {
		return userID
	}
	return grpcmeta.UserIDFromContext(ctx)
}

func requestLocale(ctx context.Context, fields *fieldReader) string {
	if locale := fields.string("locale"); locale != "" {
		return locale
	}
	return strings.TrimSpace(grpcmeta.LocaleFromContext(ctx))
}

func messageValue(msg storage.Message) map[string]any {
	value := map[string]any{
		"id":          msg.ID,
		"table_id":    msg.TableID,
		"sequence_id": msg.SequenceID,
		"user_id":     msg.UserID,
		"kind":        string(msg.Kind),
		"body":        msg.Body,
		"whisper":     msg.Whisper,
		"blind":       msg.Blind,
		"sent_at":     msg.SentAt.UTC().Format(time.RFC3339Nano),
	}
	if msg.ClientMessageID != "" {
		value["client_message_id"] = msg.ClientMessageID
	}
	if msg.Flavor != "" {
		value["flavor"] = msg.Flavor
	}
	if msg.Kind == storage.MessageKindRoll {
		value["die_result"] = msg.DieResult
		value["roll_total"] = msg.RollTotal
	}
	return value
}

func characterValue(character storage.Character) map[string]any {
	return map[string]any{
		"id":            character.ID,
		"table_id":      character.TableID,
		"owner_user_id": character.OwnerUserID,
		"name":          character.Name,
		"strength_mod":  character.StrengthMod,
		"assigned":      character.Assigned,
		"updated_at":    character.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func newStruct(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

// handleDomainError maps application errors to localized statuses. Anything
// that is not a domain error is logged and reported as internal.
func handleDomainError(err error, locale string) error {
	if _, ok := apperrors.As(err); ok {
		return i18n.ToGRPCStatus(err, locale)
	}
	log.Printf("macro request failed: %v", err)
	return status.Error(codes.Internal, "internal error")
}
