package phases

// InputDefinition describes a value a phase needs from the operator.
type InputDefinition struct {
	ID          string
	Label       string
	Description string
	Kind        InputKind
	Required    bool
	Secret      bool
	Options     []InputOption
	Default     any
}

// InputKind selects the prompt a front-end renders.
type InputKind string

const (
	InputKindText    InputKind = "text"
	InputKindSecret  InputKind = "secret"
	InputKindSelect  InputKind = "select"
	InputKindConfirm InputKind = "confirm"
)

// InputOption is one choice of a select input.
type InputOption struct {
	Value       string
	Label       string
	Description string
}

// InputOpt customizes input definitions produced by the constructors below.
type InputOpt func(*InputDefinition)

// WithDescription sets the operator-facing description.
func WithDescription(desc string) InputOpt {
	return func(def *InputDefinition) {
		def.Description = desc
	}
}

// WithDefault sets the value applied when the operator just presses enter.
func WithDefault(value any) InputOpt {
	return func(def *InputDefinition) {
		def.Default = value
	}
}

// Required marks the input as mandatory.
func Required() InputOpt {
	return func(def *InputDefinition) {
		def.Required = true
	}
}

// TextInput builds a basic text input definition.
func TextInput(id, label string, opts ...InputOpt) InputDefinition {
	return buildInput(InputDefinition{ID: id, Label: label, Kind: InputKindText}, opts)
}

// SecretInput builds a password input. Its value is never echoed or logged.
func SecretInput(id, label string, opts ...InputOpt) InputDefinition {
	return buildInput(InputDefinition{ID: id, Label: label, Kind: InputKindSecret, Secret: true}, opts)
}

// ConfirmInput builds a yes/no question answered with a bool.
func ConfirmInput(id, label string, opts ...InputOpt) InputDefinition {
	return buildInput(InputDefinition{ID: id, Label: label, Kind: InputKindConfirm, Default: true}, opts)
}

// SelectInput builds a choice between options.
func SelectInput(id, label string, options []InputOption, opts ...InputOpt) InputDefinition {
	return buildInput(InputDefinition{
		ID:      id,
		Label:   label,
		Kind:    InputKindSelect,
		Options: append([]InputOption(nil), options...),
	}, opts)
}

func buildInput(def InputDefinition, opts []InputOpt) InputDefinition {
	for _, opt := range opts {
		if opt != nil {
			opt(&def)
		}
	}
	return def
}
