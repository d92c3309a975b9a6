package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/capitalize-ai/interview-sim/internal/model"
	"github.com/capitalize-ai/interview-sim/internal/transcript"
)

//go:embed default_protocol.yaml
var defaultProtocol []byte

// ErrUnknownVariant is returned when a requested protocol variant does not exist.
var ErrUnknownVariant = errors.New("unknown protocol variant")

const (
	defaultAbortedMessage  = "The interview was aborted due to an upstream failure."
	defaultOpeningSeed     = "Hi"
	defaultMaxOutputTokens = 2048
)

// Protocol is the on-disk schema: a set of named interview variants, one of
// which is selected at startup.
type Protocol struct {
	DefaultVariant string              `yaml:"default_variant"`
	Variants       map[string]*Variant `yaml:"variants"`
}

// Variant is one complete interview configuration.
type Variant struct {
	Name string `yaml:"-"`

	SystemPrompt       string           `yaml:"system_prompt"`
	RespondentTemplate string           `yaml:"respondent_template"`
	AbortedMessage     string           `yaml:"aborted_message"`
	OpeningSeed        string           `yaml:"opening_seed"`
	Codes              []model.CodeRule `yaml:"codes"`
	DetectPolicyCodes  bool             `yaml:"detect_policy_codes"`
	SubstringFallback  *bool            `yaml:"substring_fallback"`

	Model           string   `yaml:"model"`
	Temperature     *float64 `yaml:"temperature"`
	MaxOutputTokens int      `yaml:"max_output_tokens"`

	MaxTurns             int             `yaml:"max_turns"`
	InterviewsPerPersona int             `yaml:"interviews_per_persona"`
	RetryDelays          []time.Duration `yaml:"retry_delays"`

	Personas []model.Persona `yaml:"personas"`
}

// LoadProtocol reads a protocol file. An empty path loads the embedded default.
func LoadProtocol(path string) (*Protocol, error) {
	data := defaultProtocol
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read protocol file: %w", err)
		}
		data = b
	}
	return ParseProtocol(data)
}

// ParseProtocol decodes, defaults and validates a protocol document.
func ParseProtocol(data []byte) (*Protocol, error) {
	var p Protocol
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse protocol: %w", err)
	}
	if len(p.Variants) == 0 {
		return nil, errors.New("protocol defines no variants")
	}

	var errs error
	for name, v := range p.Variants {
		if v == nil {
			errs = multierr.Append(errs, fmt.Errorf("variant %q is empty", name))
			continue
		}
		v.Name = name
		v.applyDefaults()
		if err := v.Validate(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("variant %q: %w", name, err))
		}
	}
	if p.DefaultVariant != "" {
		if _, ok := p.Variants[p.DefaultVariant]; !ok {
			errs = multierr.Append(errs, fmt.Errorf("default_variant %q: %w", p.DefaultVariant, ErrUnknownVariant))
		}
	}
	if errs != nil {
		return nil, errs
	}
	return &p, nil
}

// Variant returns the named variant, or the default when name is empty.
func (p *Protocol) Variant(name string) (*Variant, error) {
	if name == "" {
		name = p.DefaultVariant
	}
	if name == "" && len(p.Variants) == 1 {
		for _, v := range p.Variants {
			return v, nil
		}
	}
	v, ok := p.Variants[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownVariant, name, strings.Join(p.Names(), ", "))
	}
	return v, nil
}

// Names returns the variant names in sorted order.
func (p *Protocol) Names() []string {
	names := make([]string, 0, len(p.Variants))
	for name := range p.Variants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (v *Variant) applyDefaults() {
	if v.AbortedMessage == "" {
		v.AbortedMessage = defaultAbortedMessage
	}
	if v.OpeningSeed == "" {
		v.OpeningSeed = defaultOpeningSeed
	}
	if v.MaxOutputTokens == 0 {
		v.MaxOutputTokens = defaultMaxOutputTokens
	}
	if v.InterviewsPerPersona == 0 {
		v.InterviewsPerPersona = 1
	}
	if v.RetryDelays == nil {
		v.RetryDelays = []time.Duration{1 * time.Second, 10 * time.Second, 30 * time.Second}
	}
	if v.SubstringFallback == nil {
		on := true
		v.SubstringFallback = &on
	}
}

// UseSubstringFallback reports whether code detection may fall back to
// substring containment.
func (v *Variant) UseSubstringFallback() bool {
	return v.SubstringFallback == nil || *v.SubstringFallback
}

// Validate checks the variant for internal consistency.
func (v *Variant) Validate() error {
	var errs error
	if strings.TrimSpace(v.SystemPrompt) == "" {
		errs = multierr.Append(errs, errors.New("system_prompt is required"))
	}
	if strings.TrimSpace(v.RespondentTemplate) == "" {
		errs = multierr.Append(errs, errors.New("respondent_template is required"))
	}
	if v.Model == "" {
		errs = multierr.Append(errs, errors.New("model is required"))
	}
	if v.MaxTurns <= 0 {
		errs = multierr.Append(errs, errors.New("max_turns must be positive"))
	}
	if v.InterviewsPerPersona < 0 {
		errs = multierr.Append(errs, errors.New("interviews_per_persona must not be negative"))
	}
	if len(v.Personas) == 0 {
		errs = multierr.Append(errs, errors.New("at least one persona is required"))
	}
	for _, d := range v.RetryDelays {
		if d < 0 {
			errs = multierr.Append(errs, fmt.Errorf("retry delay %s is negative", d))
		}
	}

	seenPersona := make(map[string]bool)
	for _, p := range v.Personas {
		if p.Name == "" {
			errs = multierr.Append(errs, errors.New("persona name is required"))
			continue
		}
		if err := transcript.ValidateIdentity(transcript.Identity(p.Name, 1)); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("persona %q: %w", p.Name, err))
		}
		if seenPersona[p.Name] {
			errs = multierr.Append(errs, fmt.Errorf("duplicate persona %q", p.Name))
		}
		seenPersona[p.Name] = true
	}

	seenCode := make(map[string]bool)
	for _, c := range v.Codes {
		if c.Code == "" {
			errs = multierr.Append(errs, errors.New("code token is required"))
			continue
		}
		if seenCode[c.Code] {
			errs = multierr.Append(errs, fmt.Errorf("duplicate code %q", c.Code))
		}
		seenCode[c.Code] = true
		if _, err := model.ParseSignal(string(c.Signal)); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("code %q: %w", c.Code, err))
		}
		if c.Halts && c.ClosingMessage == "" {
			errs = multierr.Append(errs, fmt.Errorf("halting code %q needs a closing_message", c.Code))
		}
		if c.Halts && c.Signal == model.SignalDepressionCue {
			errs = multierr.Append(errs, fmt.Errorf("code %q: %s is policy-only and cannot halt", c.Code, c.Signal))
		}
	}
	return errs
}

// FilterPersonas keeps the personas whose name matches one of names, in
// configured order. An empty filter keeps all of them.
func (v *Variant) FilterPersonas(names []string) ([]model.Persona, error) {
	if len(names) == 0 {
		return v.Personas, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []model.Persona
	for _, p := range v.Personas {
		if want[p.Name] {
			out = append(out, p)
			delete(want, p.Name)
		}
	}
	if len(want) > 0 {
		missing := make([]string, 0, len(want))
		for n := range want {
			missing = append(missing, n)
		}
		sort.Strings(missing)
		return nil, fmt.Errorf("unknown persona(s): %s", strings.Join(missing, ", "))
	}
	return out, nil
}
