// Package errors provides structured error handling with i18n support.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Request errors
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeTableIDRequired Code = "TABLE_ID_REQUIRED"
	CodeUserIDRequired  Code = "USER_ID_REQUIRED"
	CodeFilterInvalid   Code = "FILTER_INVALID"
	CodePageTokenBad    Code = "PAGE_TOKEN_INVALID"

	// Macro errors
	CodeNoPreviousRoll Code = "NO_PREVIOUS_ROLL"
	CodeActorNotFound  Code = "ACTOR_NOT_FOUND"

	// Character errors
	CodeCharacterNameEmpty    Code = "CHARACTER_NAME_EMPTY"
	CodeCharacterNotFound     Code = "CHARACTER_NOT_FOUND"
	CodeCharacterNotOwned     Code = "CHARACTER_NOT_OWNED"
	CodeStrengthModOutOfRange Code = "STRENGTH_MOD_OUT_OF_RANGE"

	// Dice errors
	CodeDiceMissing     Code = "DICE_MISSING"
	CodeDiceInvalidSpec Code = "DICE_INVALID_SPEC"
	CodeSeedUnavailable Code = "SEED_UNAVAILABLE"

	// CodeNotFound is the generic missing-record code.
	CodeNotFound Code = "NOT_FOUND"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeInvalidArgument,
		CodeTableIDRequired,
		CodeUserIDRequired,
		CodeFilterInvalid,
		CodePageTokenBad,
		CodeCharacterNameEmpty,
		CodeStrengthModOutOfRange,
		CodeDiceMissing,
		CodeDiceInvalidSpec:
		return codes.InvalidArgument

	// FailedPrecondition - table state doesn't allow the macro
	case CodeNoPreviousRoll,
		CodeActorNotFound:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeNotFound,
		CodeCharacterNotFound:
		return codes.NotFound

	case CodeCharacterNotOwned:
		return codes.PermissionDenied

	case CodeSeedUnavailable:
		return codes.Unavailable

	default:
		return codes.Internal
	}
}
