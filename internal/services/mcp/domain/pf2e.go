package domain

import (
	"context"
	"fmt"
	"strconv"

	grpcmeta "github.com/louisbranch/macrotable/internal/services/macros/api/grpc/metadata"
	"github.com/louisbranch/macrotable/internal/services/macros/render"
	pf2e "github.com/louisbranch/macrotable/internal/systems/pf2e/domain"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// MacroClient is the subset of the macro gRPC client the tools call.
type MacroClient interface {
	CounteractCheck(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	WhirlingThrow(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	EvaluateCounteract(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ExplainCounteract(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

// CounteractEvaluateInput represents the MCP tool input for a counteract evaluation.
type CounteractEvaluateInput struct {
	RollTotal int `json:"roll_total" jsonschema:"check total including the d20 and every modifier"`
	DC        int `json:"dc" jsonschema:"counteract DC of the opposing effect"`
	YourRank  int `json:"your_rank" jsonschema:"counteract rank of your effect"`
	OppRank   int `json:"opp_rank" jsonschema:"counteract rank of the opposing effect"`
}

// CounteractEvaluateResult represents the MCP tool output for a counteract evaluation.
type CounteractEvaluateResult struct {
	DegreeCode   string `json:"degree_code" jsonschema:"stable degree identifier"`
	Degree       string `json:"degree" jsonschema:"degree of success label"`
	Counteracted bool   `json:"counteracted" jsonschema:"whether the opposing effect is counteracted"`
	RulesVersion string `json:"rules_version" jsonschema:"semantic ruleset version"`
}

// CounteractExplainStep represents a deterministic evaluation step.
type CounteractExplainStep struct {
	Code    string         `json:"code" jsonschema:"stable step identifier"`
	Message string         `json:"message" jsonschema:"human-readable step description"`
	Data    map[string]any `json:"data" jsonschema:"structured step payload"`
}

// CounteractExplainResult represents the MCP tool output for explanations.
type CounteractExplainResult struct {
	DegreeCode     string                  `json:"degree_code" jsonschema:"stable degree identifier"`
	Degree         string                  `json:"degree" jsonschema:"degree of success label"`
	Counteracted   bool                    `json:"counteracted" jsonschema:"whether the opposing effect is counteracted"`
	RulesVersion   string                  `json:"rules_version" jsonschema:"semantic ruleset version"`
	Diff           int                     `json:"diff" jsonschema:"roll total minus DC"`
	BaseDegreeCode string                  `json:"base_degree_code" jsonschema:"degree before the rank upgrade"`
	Upgraded       bool                    `json:"upgraded" jsonschema:"whether a failure was upgraded by rank"`
	Steps          []CounteractExplainStep `json:"steps" jsonschema:"ordered evaluation steps"`
}

// CounteractCheckInput represents the MCP tool input for the full counteract macro.
type CounteractCheckInput struct {
	TableID         string `json:"table_id" jsonschema:"table whose chat receives the cards"`
	UserID          string `json:"user_id" jsonschema:"user the roll is made for"`
	Modifier        int    `json:"modifier,omitempty" jsonschema:"counteract modifier"`
	Bonus           int    `json:"bonus,omitempty" jsonschema:"situational bonus or penalty"`
	DC              int    `json:"dc" jsonschema:"counteract DC"`
	YourRank        int    `json:"your_rank,omitempty" jsonschema:"counteract rank of your effect"`
	OppRank         int    `json:"opp_rank,omitempty" jsonschema:"counteract rank of the opposing effect"`
	Secret          bool   `json:"secret,omitempty" jsonschema:"whisper the roll and card to the GM"`
	UseLastRoll     bool   `json:"use_last_roll,omitempty" jsonschema:"reuse the user's last roll total instead of rolling"`
	Seed            *int64 `json:"seed,omitempty" jsonschema:"optional seed for a deterministic roll"`
	Locale          string `json:"locale,omitempty" jsonschema:"locale for the card text"`
	ClientMessageID string `json:"client_message_id,omitempty" jsonschema:"idempotency key for retries"`
}

// CounteractCheckResult represents the MCP tool output for the full counteract macro.
type CounteractCheckResult struct {
	DegreeCode    string `json:"degree_code" jsonschema:"stable degree identifier"`
	Degree        string `json:"degree" jsonschema:"degree of success label"`
	Counteracted  bool   `json:"counteracted" jsonschema:"whether the opposing effect is counteracted"`
	RulesVersion  string `json:"rules_version" jsonschema:"semantic ruleset version"`
	RollTotal     int    `json:"roll_total" jsonschema:"check total"`
	Base          int    `json:"base" jsonschema:"die result, or the reused total"`
	UsedLastRoll  bool   `json:"used_last_roll" jsonschema:"whether the last roll was reused"`
	Seed          string `json:"seed,omitempty" jsonschema:"seed used for a fresh roll"`
	SeedSource    string `json:"seed_source,omitempty" jsonschema:"seed source (CLIENT or SERVER)"`
	Breakdown     string `json:"breakdown" jsonschema:"roll breakdown as shown on the card"`
	Text          string `json:"text" jsonschema:"plain-text card"`
	CardMessageID string `json:"card_message_id" jsonschema:"chat message id of the card"`
}

// WhirlingThrowDamageInput represents the MCP tool input for Whirling Throw damage.
type WhirlingThrowDamageInput struct {
	StrengthMod int    `json:"strength_mod" jsonschema:"Strength modifier of the thrower, between -100 and 100"`
	ActorName   string `json:"actor_name,omitempty" jsonschema:"optional thrower name shown on the card"`
	Locale      string `json:"locale,omitempty" jsonschema:"locale for the card text"`
}

// WhirlingThrowDamageResult represents the MCP tool output for Whirling Throw damage.
type WhirlingThrowDamageResult struct {
	DistanceFeet  int    `json:"distance_feet" jsonschema:"throw distance in feet"`
	DiceCount     int    `json:"dice_count" jsonschema:"number of d6 in the damage"`
	DamageFormula string `json:"damage_formula" jsonschema:"damage formula"`
	DamageSyntax  string `json:"damage_syntax" jsonschema:"inline damage roll posted to chat"`
	Text          string `json:"text" jsonschema:"plain-text card"`
}

// WhirlingThrowInput represents the MCP tool input for the full Whirling Throw macro.
type WhirlingThrowInput struct {
	TableID         string `json:"table_id" jsonschema:"table whose chat receives the card"`
	UserID          string `json:"user_id" jsonschema:"user whose character throws"`
	CharacterID     string `json:"character_id,omitempty" jsonschema:"character to use instead of the assigned one"`
	RollDamage      bool   `json:"roll_damage,omitempty" jsonschema:"roll the damage on the server"`
	Seed            *int64 `json:"seed,omitempty" jsonschema:"optional seed for a deterministic damage roll"`
	Locale          string `json:"locale,omitempty" jsonschema:"locale for the card text"`
	ClientMessageID string `json:"client_message_id,omitempty" jsonschema:"idempotency key for retries"`
}

// WhirlingThrowResult represents the MCP tool output for the full Whirling Throw macro.
type WhirlingThrowResult struct {
	DistanceFeet  int    `json:"distance_feet" jsonschema:"throw distance in feet"`
	DiceCount     int    `json:"dice_count" jsonschema:"number of d6 in the damage"`
	DamageFormula string `json:"damage_formula" jsonschema:"damage formula"`
	DamageSyntax  string `json:"damage_syntax" jsonschema:"inline damage roll posted to chat"`
	Text          string `json:"text" jsonschema:"plain-text card"`
	ActorID       string `json:"actor_id" jsonschema:"character that threw"`
	ActorName     string `json:"actor_name" jsonschema:"name of the character that threw"`
	DamageTotal   *int   `json:"damage_total,omitempty" jsonschema:"rolled damage, when requested"`
	CardMessageID string `json:"card_message_id" jsonschema:"chat message id of the card"`
}

// RulesVersionInput represents the MCP tool input for ruleset metadata.
type RulesVersionInput struct{}

// RulesVersionResult represents the MCP tool output for ruleset metadata.
type RulesVersionResult struct {
	System          string   `json:"system" jsonschema:"game system name"`
	Module          string   `json:"module" jsonschema:"ruleset module name"`
	RulesVersion    string   `json:"rules_version" jsonschema:"semantic ruleset version"`
	DiceModel       string   `json:"dice_model" jsonschema:"dice model description"`
	TotalFormula    string   `json:"total_formula" jsonschema:"total calculation expression"`
	DegreeRule      string   `json:"degree_rule" jsonschema:"degree of success thresholds"`
	RankUpgradeRule string   `json:"rank_upgrade_rule" jsonschema:"rank upgrade rule"`
	LevelCapRule    string   `json:"level_cap_rule" jsonschema:"rank cap per degree"`
	Degrees         []string `json:"degrees" jsonschema:"supported degree codes"`
}

// CounteractEvaluateTool defines the MCP tool schema for counteract evaluation.
func CounteractEvaluateTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "counteract_evaluate",
		Description: "Evaluates a PF2e counteract check from a known total",
	}
}

// CounteractExplainTool defines the MCP tool schema for explanations.
func CounteractExplainTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "counteract_explain",
		Description: "Explains each rule applied to a counteract check",
	}
}

// CounteractCheckTool defines the MCP tool schema for the full counteract macro.
func CounteractCheckTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "counteract_check",
		Description: "Rolls a counteract check for a user and posts the result card to the table chat",
	}
}

// WhirlingThrowDamageTool defines the MCP tool schema for Whirling Throw damage.
func WhirlingThrowDamageTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "whirling_throw_damage",
		Description: "Computes Whirling Throw distance and damage from a Strength modifier",
	}
}

// WhirlingThrowTool defines the MCP tool schema for the full Whirling Throw macro.
func WhirlingThrowTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "whirling_throw",
		Description: "Posts a Whirling Throw card for a user's character",
	}
}

// RulesVersionTool defines the MCP tool schema for ruleset metadata.
func RulesVersionTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "counteract_rules_version",
		Description: "Describes the counteract ruleset semantics",
	}
}

func counteractFields(input CounteractEvaluateInput) map[string]any {
	return map[string]any{
		"roll_total": input.RollTotal,
		"dc":         input.DC,
		"your_rank":  input.YourRank,
		"opp_rank":   input.OppRank,
	}
}

func evaluateResultFrom(response *structpb.Struct) CounteractEvaluateResult {
	return CounteractEvaluateResult{
		DegreeCode:   stringField(response, "degree_code"),
		Degree:       stringField(response, "degree"),
		Counteracted: boolField(response, "counteracted"),
		RulesVersion: stringField(response, "rules_version"),
	}
}

// CounteractEvaluateHandler evaluates a counteract through the macro API.
func CounteractEvaluateHandler(client MacroClient) mcp.ToolHandlerFor[CounteractEvaluateInput, CounteractEvaluateResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input CounteractEvaluateInput) (*mcp.CallToolResult, CounteractEvaluateResult, error) {
		response, result, err := callMacro(ctx, "counteract evaluate", grpcmeta.Identity{}, client.EvaluateCounteract, counteractFields(input))
		if err != nil {
			return nil, CounteractEvaluateResult{}, err
		}
		return result, evaluateResultFrom(response), nil
	}
}

// CounteractExplainHandler returns the evaluation with each rule step.
func CounteractExplainHandler(client MacroClient) mcp.ToolHandlerFor[CounteractEvaluateInput, CounteractExplainResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input CounteractEvaluateInput) (*mcp.CallToolResult, CounteractExplainResult, error) {
		response, result, err := callMacro(ctx, "counteract explain", grpcmeta.Identity{}, client.ExplainCounteract, counteractFields(input))
		if err != nil {
			return nil, CounteractExplainResult{}, err
		}

		steps := listField(response, "steps")
		if len(steps) == 0 {
			return nil, CounteractExplainResult{}, fmt.Errorf("counteract explain steps are missing")
		}
		evaluated := evaluateResultFrom(response)
		explained := CounteractExplainResult{
			DegreeCode:     evaluated.DegreeCode,
			Degree:         evaluated.Degree,
			Counteracted:   evaluated.Counteracted,
			RulesVersion:   evaluated.RulesVersion,
			Diff:           intField(response, "diff"),
			BaseDegreeCode: stringField(response, "base_degree_code"),
			Upgraded:       boolField(response, "upgraded"),
			Steps:          make([]CounteractExplainStep, 0, len(steps)),
		}
		for _, value := range steps {
			step := value.GetStructValue()
			data := map[string]any{}
			if raw := step.GetFields()["data"].GetStructValue(); raw != nil {
				data = raw.AsMap()
			}
			explained.Steps = append(explained.Steps, CounteractExplainStep{
				Code:    stringField(step, "code"),
				Message: stringField(step, "message"),
				Data:    data,
			})
		}
		return result, explained, nil
	}
}

// CounteractCheckHandler runs the full counteract macro for a table member.
func CounteractCheckHandler(client MacroClient) mcp.ToolHandlerFor[CounteractCheckInput, CounteractCheckResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input CounteractCheckInput) (*mcp.CallToolResult, CounteractCheckResult, error) {
		fields := map[string]any{
			"table_id":      input.TableID,
			"modifier":      input.Modifier,
			"bonus":         input.Bonus,
			"dc":            input.DC,
			"your_rank":     input.YourRank,
			"opp_rank":      input.OppRank,
			"secret":        input.Secret,
			"use_last_roll": input.UseLastRoll,
		}
		addOptionalFields(fields, input.Seed, input.ClientMessageID)

		identity := grpcmeta.Identity{UserID: input.UserID, Locale: input.Locale}
		response, result, err := callMacro(ctx, "counteract check", identity, client.CounteractCheck, fields)
		if err != nil {
			return nil, CounteractCheckResult{}, err
		}
		return result, CounteractCheckResult{
			DegreeCode:    stringField(response, "degree_code"),
			Degree:        stringField(response, "degree"),
			Counteracted:  boolField(response, "counteracted"),
			RulesVersion:  pf2e.RulesVersion().RulesVersion,
			RollTotal:     intField(response, "roll_total"),
			Base:          intField(response, "base"),
			UsedLastRoll:  boolField(response, "used_last_roll"),
			Seed:          stringField(response, "seed"),
			SeedSource:    stringField(response, "seed_source"),
			Breakdown:     stringField(response, "breakdown"),
			Text:          stringField(response, "text"),
			CardMessageID: stringField(structField(response, "card"), "id"),
		}, nil
	}
}

// addOptionalFields sets seed (as a decimal string, since structpb numbers
// are float64) and client_message_id when the caller supplied them.
func addOptionalFields(fields map[string]any, seed *int64, clientMessageID string) {
	if seed != nil {
		fields["seed"] = strconv.FormatInt(*seed, 10)
	}
	if clientMessageID != "" {
		fields["client_message_id"] = clientMessageID
	}
}

// WhirlingThrowDamageHandler computes Whirling Throw distance and damage locally.
func WhirlingThrowDamageHandler() mcp.ToolHandlerFor[WhirlingThrowDamageInput, WhirlingThrowDamageResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input WhirlingThrowDamageInput) (*mcp.CallToolResult, WhirlingThrowDamageResult, error) {
		if !pf2e.StrengthModInRange(input.StrengthMod) {
			return nil, WhirlingThrowDamageResult{}, fmt.Errorf("whirling throw damage failed: strength_mod %d is outside %d to %d",
				input.StrengthMod, -pf2e.MaxStrengthMod, pf2e.MaxStrengthMod)
		}
		throw := pf2e.EvaluateWhirlingThrow(input.StrengthMod)
		text := render.WhirlingThrowText(render.NewLocalizer(input.Locale), render.WhirlingThrowCard{
			ActorName: input.ActorName,
			Result:    throw,
		})
		return nil, WhirlingThrowDamageResult{
			DistanceFeet:  throw.DistanceFeet,
			DiceCount:     throw.DiceCount,
			DamageFormula: throw.DamageFormula,
			DamageSyntax:  throw.DamageSyntax,
			Text:          text,
		}, nil
	}
}

// WhirlingThrowHandler runs the full Whirling Throw macro for a table member.
func WhirlingThrowHandler(client MacroClient) mcp.ToolHandlerFor[WhirlingThrowInput, WhirlingThrowResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input WhirlingThrowInput) (*mcp.CallToolResult, WhirlingThrowResult, error) {
		fields := map[string]any{
			"table_id":    input.TableID,
			"roll_damage": input.RollDamage,
		}
		if input.CharacterID != "" {
			fields["character_id"] = input.CharacterID
		}
		addOptionalFields(fields, input.Seed, input.ClientMessageID)

		identity := grpcmeta.Identity{UserID: input.UserID, Locale: input.Locale}
		response, result, err := callMacro(ctx, "whirling throw", identity, client.WhirlingThrow, fields)
		if err != nil {
			return nil, WhirlingThrowResult{}, err
		}

		actor := structField(response, "actor")
		thrown := WhirlingThrowResult{
			DistanceFeet:  intField(response, "distance_feet"),
			DiceCount:     intField(response, "dice_count"),
			DamageFormula: stringField(response, "damage_formula"),
			DamageSyntax:  stringField(response, "damage_syntax"),
			Text:          stringField(response, "text"),
			ActorID:       stringField(actor, "id"),
			ActorName:     stringField(actor, "name"),
			CardMessageID: stringField(structField(response, "card"), "id"),
		}
		if damage := structField(response, "damage"); damage != nil {
			total := intField(damage, "total")
			thrown.DamageTotal = &total
		}
		return result, thrown, nil
	}
}

// RulesVersionHandler returns the static counteract ruleset metadata.
func RulesVersionHandler() mcp.ToolHandlerFor[RulesVersionInput, RulesVersionResult] {
	return func(context.Context, *mcp.CallToolRequest, RulesVersionInput) (*mcp.CallToolResult, RulesVersionResult, error) {
		rules := pf2e.RulesVersion()
		degrees := make([]string, 0, len(rules.Degrees))
		for _, degree := range rules.Degrees {
			degrees = append(degrees, degree.Code())
		}
		return nil, RulesVersionResult{
			System:          rules.System,
			Module:          rules.Module,
			RulesVersion:    rules.RulesVersion,
			DiceModel:       rules.DiceModel,
			TotalFormula:    rules.TotalFormula,
			DegreeRule:      rules.DegreeRule,
			RankUpgradeRule: rules.RankUpgradeRule,
			LevelCapRule:    rules.LevelCapRule,
			Degrees:         degrees,
		}, nil
	}
}

func structField(s *structpb.Struct, key string) *structpb.Struct {
	return s.GetFields()[key].GetStructValue()
}

func listField(s *structpb.Struct, key string) []*structpb.Value {
	return s.GetFields()[key].GetListValue().GetValues()
}

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func intField(s *structpb.Struct, key string) int {
	return int(s.GetFields()[key].GetNumberValue())
}

func boolField(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}
