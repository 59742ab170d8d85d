package phases

import "context"

// InputHandler answers an InputRequestError, usually by asking the operator.
// Reason explains why the value is needed again, e.g. a rejected password.
type InputHandler interface {
	RequestInput(ctx context.Context, phase PhaseMetadata, input InputDefinition, reason string) (any, error)
}

// InputHandlerFunc adapts a function into an InputHandler.
type InputHandlerFunc func(ctx context.Context, phase PhaseMetadata, input InputDefinition, reason string) (any, error)

func (f InputHandlerFunc) RequestInput(ctx context.Context, phase PhaseMetadata, input InputDefinition, reason string) (any, error) {
	return f(ctx, phase, input, reason)
}

func inputKey(phaseID, inputID string) string {
	return "phase:" + phaseID + ":input:" + inputID
}

// SetInput records an operator answer for a phase.
func SetInput(ctx *Context, phaseID, inputID string, value any) {
	ctx.Set(inputKey(phaseID, inputID), value)
}

// GetInput returns the answer recorded for a phase input.
func GetInput(ctx *Context, phaseID, inputID string) (any, bool) {
	return ctx.Get(inputKey(phaseID, inputID))
}

// InputValue returns the answer recorded for a phase input when it holds a T.
func InputValue[T any](ctx *Context, phaseID, inputID string) (T, bool) {
	return Value[T](ctx, inputKey(phaseID, inputID))
}

// ClearInputs drops every answer collected for a phase. Answers, passwords
// included, do not outlive the phase that asked for them.
func ClearInputs(ctx *Context, phaseID string) {
	ctx.DeletePrefix(inputKey(phaseID, ""))
}
