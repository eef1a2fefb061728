package scenario

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"
)

var (
	counteractArgs = []string{"modifier", "bonus", "dc", "your_rank", "opp_rank", "secret", "use_last_roll", "seed", "client_message_id"}
	evaluateArgs   = []string{"roll_total", "dc", "your_rank", "opp_rank"}
	whirlingArgs   = []string{"roll_damage", "seed", "client_message_id"}
	characterArgs  = []string{"strength_mod", "assigned"}
	historyArgs    = []string{"filter", "page_size", "page_token"}
)

var (
	counteractAliases = map[string]string{"degree": "degree_code"}
	whirlingAliases   = map[string]string{
		"actor":        "actor.name",
		"strength_mod": "actor.strength_mod",
		"distance":     "distance_feet",
		"dice":         "dice_count",
		"formula":      "damage_formula",
		"syntax":       "damage_syntax",
		"damage_total": "damage.total",
	}
	historyAliases = map[string]string{"next_page": "next_page_token"}
)

func (r *Runner) runStep(ctx context.Context, state *scenarioState, step Step) error {
	switch step.Kind {
	case "table":
		return r.runTableStep(state, step)
	case "user":
		return r.runUserStep(state, step)
	case "character":
		return r.runCharacterStep(ctx, state, step)
	case "counteract":
		return r.runCounteractStep(ctx, state, step)
	case "evaluate":
		return r.runEvaluateStep(ctx, state, step, false)
	case "explain":
		return r.runEvaluateStep(ctx, state, step, true)
	case "whirling_throw":
		return r.runWhirlingThrowStep(ctx, state, step)
	case "history":
		return r.runHistoryStep(ctx, state, step)
	default:
		return fmt.Errorf("unknown step kind %q", step.Kind)
	}
}

func (r *Runner) runTableStep(state *scenarioState, step Step) error {
	tableID := optionalString(step.Args, "id", "")
	if tableID == "" {
		return fmt.Errorf("table id is required")
	}
	state.tableID = tableID
	return nil
}

func (r *Runner) runUserStep(state *scenarioState, step Step) error {
	userID := optionalString(step.Args, "id", "")
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	state.userID = userID
	state.locale = optionalString(step.Args, "locale", "")
	return nil
}

func (r *Runner) runCharacterStep(ctx context.Context, state *scenarioState, step Step) error {
	name := optionalString(step.Args, "name", "")
	request := pickArgs(step.Args, characterArgs...)
	request["name"] = name
	if characterID := optionalString(step.Args, "id", ""); characterID != "" {
		request["character_id"] = state.characterID(characterID)
	}
	state.addIdentity(request, step.Args)

	response, done, err := r.call(ctx, state, step, func(callCtx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
		return r.client.PutCharacter(callCtx, in)
	}, request)
	if done || err != nil {
		return err
	}

	values := response.AsMap()
	character, _ := values["character"].(map[string]any)
	characterID, _ := character["id"].(string)
	if characterID == "" {
		return fmt.Errorf("put character returned no id")
	}
	state.characters[name] = characterID
	if alias := optionalString(step.Args, "id", ""); alias != "" {
		state.characters[alias] = characterID
	}
	r.logf("character %s -> %s", name, characterID)
	return r.checkExpectations(character, step.Args, nil)
}

func (r *Runner) runCounteractStep(ctx context.Context, state *scenarioState, step Step) error {
	request := pickArgs(step.Args, counteractArgs...)
	state.addIdentity(request, step.Args)

	response, done, err := r.call(ctx, state, step, func(callCtx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
		return r.client.CounteractCheck(callCtx, in)
	}, request)
	if done || err != nil {
		return err
	}
	values := response.AsMap()
	r.logf("counteract %v: %v", values["breakdown"], values["degree_code"])
	return r.checkExpectations(values, step.Args, counteractAliases)
}

func (r *Runner) runEvaluateStep(ctx context.Context, state *scenarioState, step Step, explain bool) error {
	request := pickArgs(step.Args, evaluateArgs...)
	invoke := func(callCtx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
		if explain {
			return r.client.ExplainCounteract(callCtx, in)
		}
		return r.client.EvaluateCounteract(callCtx, in)
	}

	response, done, err := r.call(ctx, state, step, invoke, request)
	if done || err != nil {
		return err
	}
	values := response.AsMap()
	if steps, ok := values["steps"].([]any); ok {
		values["step_count"] = len(steps)
	}
	return r.checkExpectations(values, step.Args, counteractAliases)
}

func (r *Runner) runWhirlingThrowStep(ctx context.Context, state *scenarioState, step Step) error {
	request := pickArgs(step.Args, whirlingArgs...)
	if character := optionalString(step.Args, "character", ""); character != "" {
		request["character_id"] = state.characterID(character)
	}
	state.addIdentity(request, step.Args)

	response, done, err := r.call(ctx, state, step, func(callCtx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
		return r.client.WhirlingThrow(callCtx, in)
	}, request)
	if done || err != nil {
		return err
	}
	values := response.AsMap()
	r.logf("whirling throw %v: %v ft", values["damage_formula"], values["distance_feet"])
	return r.checkExpectations(values, step.Args, whirlingAliases)
}

func (r *Runner) runHistoryStep(ctx context.Context, state *scenarioState, step Step) error {
	request := pickArgs(step.Args, historyArgs...)
	request["table_id"] = state.tableID

	response, done, err := r.call(ctx, state, step, func(callCtx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
		return r.client.ListMessages(callCtx, in)
	}, request)
	if done || err != nil {
		return err
	}
	values := response.AsMap()
	messages, _ := values["messages"].([]any)
	values["count"] = len(messages)
	if token, _ := values["next_page_token"].(string); token == "" {
		values["next_page_token"] = false
	} else {
		values["next_page_token"] = true
	}
	return r.checkExpectations(values, step.Args, historyAliases)
}

// characterID resolves a scenario character name to its stored id.
func (s *scenarioState) characterID(ref string) string {
	if characterID, ok := s.characters[ref]; ok {
		return characterID
	}
	return ref
}

// addIdentity fills table, user and locale, letting step arguments override the
// current scenario identity.
func (s *scenarioState) addIdentity(request map[string]any, args map[string]any) {
	request["table_id"] = optionalString(args, "table", s.tableID)
	request["user_id"] = optionalString(args, "user", s.userID)
	if locale := optionalString(args, "locale", s.locale); locale != "" {
		request["locale"] = locale
	}
}

// stepLocale is the locale sent in request metadata for a step.
func (s *scenarioState) stepLocale(args map[string]any) string {
	return strings.TrimSpace(optionalString(args, "locale", s.locale))
}
