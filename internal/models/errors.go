package models

import "errors"

var (
	ErrMissingCredentials = errors.New("missing FMP API key")
	ErrInvalidAST         = errors.New("invalid rule AST")
	ErrInvalidNodeType    = errors.New("invalid node type")
	ErrEmptyComposite     = errors.New("composite node must have at least one child")
	ErrMissingConditionID = errors.New("condition node must have an id")
	ErrInvalidRuleID      = errors.New("invalid rule ID")
	ErrInvalidRuleName    = errors.New("invalid rule name")
	ErrRuleNotFound       = errors.New("rule not found")
	ErrInvalidSchedule    = errors.New("invalid schedule")
	ErrInvalidOperator    = errors.New("invalid operator")
	ErrInvalidLimit       = errors.New("invalid limit")
)
