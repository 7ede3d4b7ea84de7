package contract

import (
	"errors"
	"fmt"
)

var (
	ErrOracleInvoke       = errors.New("oracle invoke failed")
	ErrProtocolViolation  = errors.New("oracle reply violates protocol")
	ErrUnknownTool        = fmt.Errorf("%w: unknown tool", ErrProtocolViolation)
	ErrInvalidToolInput   = errors.New("tool input violates contract")
	ErrStepBudgetExceeded = errors.New("step budget exceeded")
	ErrStore              = errors.New("record store operation failed")
	ErrValidation         = errors.New("validation failed")
	ErrInvalidMessage     = errors.New("message is empty")
)
