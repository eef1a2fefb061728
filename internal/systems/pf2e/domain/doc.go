// Package domain contains the core Pathfinder 2e macro mechanics.
//
// This package provides pure rule logic with no I/O:
//
//   - Counteract evaluation (degree of success, rank upgrade, level caps)
//   - Whirling Throw distance and damage formula derivation
//   - Rules explanation for deterministic replay
//
// Dice rolling, chat posting and character lookup live in the macro service;
// callers resolve roll totals and attribute modifiers before calling in.
package domain
