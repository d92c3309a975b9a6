package model

// CodeRule binds a protocol code token to its signal. Halting rules replace
// the raw reply with ClosingMessage and end the session; non-halting rules
// are policy cues that only get recorded.
type CodeRule struct {
	Code           string            `yaml:"code" json:"code"`
	Signal         TerminationSignal `yaml:"signal" json:"signal"`
	ClosingMessage string            `yaml:"closing_message" json:"closing_message,omitempty"`
	Halts          bool              `yaml:"halts" json:"halts"`
}
