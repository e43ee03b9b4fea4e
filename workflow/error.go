package workflow

import (
	"net/http"

	"github.com/Abraxas-365/craftable/errx"
)

var ErrRegistry = errx.NewRegistry("WORKFLOW")

var (
	// Definition errors
	CodeDefinitionNotFound = ErrRegistry.Register("DEFINITION_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Workflow definition not found")
	CodeInvalidDefinition  = ErrRegistry.Register("INVALID_DEFINITION", errx.TypeValidation, http.StatusBadRequest, "Invalid workflow definition")
	CodeDefinitionInactive = ErrRegistry.Register("DEFINITION_INACTIVE", errx.TypeBusiness, http.StatusForbidden, "Workflow definition is inactive")

	// Execution errors
	CodeExecutionNotFound  = ErrRegistry.Register("EXECUTION_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Execution not found")
	CodeExecutionTerminal  = ErrRegistry.Register("EXECUTION_TERMINAL", errx.TypeBusiness, http.StatusConflict, "Execution already in a terminal status")
	CodeInvalidTransition  = ErrRegistry.Register("INVALID_TRANSITION", errx.TypeBusiness, http.StatusConflict, "Illegal execution status transition")
	CodeStepNotFound       = ErrRegistry.Register("STEP_NOT_FOUND", errx.TypeInternal, http.StatusInternalServerError, "Step not found in definition")
	CodeUnknownStepType    = ErrRegistry.Register("UNKNOWN_STEP_TYPE", errx.TypeInternal, http.StatusInternalServerError, "No executor registered for step type")
	CodeAutoAdvanceLimit   = ErrRegistry.Register("AUTO_ADVANCE_LIMIT", errx.TypeInternal, http.StatusInternalServerError, "Auto-advance step bound exceeded")
	CodeExecutionFailed    = ErrRegistry.Register("EXECUTION_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Workflow execution failed")
	CodeSessionBusy        = ErrRegistry.Register("SESSION_BUSY", errx.TypeConflict, http.StatusConflict, "Session already has an active execution")

	// State errors
	CodeStateNotFound = ErrRegistry.Register("STATE_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Execution state not found")
	CodeStateConflict = ErrRegistry.Register("STATE_CONFLICT", errx.TypeConflict, http.StatusConflict, "Concurrent state update rejected")

	// Dispatch errors
	CodeDispatchFailed = ErrRegistry.Register("DISPATCH_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Action dispatch failed")
	CodeUnknownAction  = ErrRegistry.Register("UNKNOWN_ACTION", errx.TypeValidation, http.StatusBadRequest, "Unknown action name")
)

// Error constructor functions
func ErrDefinitionNotFound() *errx.Error {
	return ErrRegistry.New(CodeDefinitionNotFound)
}

func ErrInvalidDefinition() *errx.Error {
	return ErrRegistry.New(CodeInvalidDefinition)
}

func ErrDefinitionInactive() *errx.Error {
	return ErrRegistry.New(CodeDefinitionInactive)
}

func ErrExecutionNotFound() *errx.Error {
	return ErrRegistry.New(CodeExecutionNotFound)
}

func ErrExecutionTerminal() *errx.Error {
	return ErrRegistry.New(CodeExecutionTerminal)
}

func ErrInvalidTransition() *errx.Error {
	return ErrRegistry.New(CodeInvalidTransition)
}

func ErrStepNotFound() *errx.Error {
	return ErrRegistry.New(CodeStepNotFound)
}

func ErrUnknownStepType() *errx.Error {
	return ErrRegistry.New(CodeUnknownStepType)
}

func ErrAutoAdvanceLimit() *errx.Error {
	return ErrRegistry.New(CodeAutoAdvanceLimit)
}

func ErrExecutionFailed() *errx.Error {
	return ErrRegistry.New(CodeExecutionFailed)
}

func ErrSessionBusy() *errx.Error {
	return ErrRegistry.New(CodeSessionBusy)
}

func ErrStateNotFound() *errx.Error {
	return ErrRegistry.New(CodeStateNotFound)
}

func ErrStateConflict() *errx.Error {
	return ErrRegistry.New(CodeStateConflict)
}

func ErrDispatchFailed() *errx.Error {
	return ErrRegistry.New(CodeDispatchFailed)
}

func ErrUnknownAction() *errx.Error {
	return ErrRegistry.New(CodeUnknownAction)
}
