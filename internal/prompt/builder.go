package prompt

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"cara/internal/ncr"
)

// DefaultLanguage is the local language paired with English in bilingual
// output.
var DefaultLanguage = language.MustParse("zh-Hans")

const (
	preserveInstruction = "preserve and extend"
	generateInstruction = "generate new"
)

// Prompt is the provider-agnostic pair handed to any backend.
type Prompt struct {
	System string
	User   string
}

// Builder renders section prompts. It holds no per-call state and is safe for
// concurrent use.
type Builder struct {
	lang     language.Tag
	langName string
}

// Option customizes a Builder.
type Option func(*Builder)

// WithLanguage sets the local language used alongside English.
func WithLanguage(tag language.Tag) Option {
	return func(b *Builder) {
		if tag != language.Und {
			b.lang = tag
		}
	}
}

// NewBuilder constructs a Builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{lang: DefaultLanguage}
	for _, opt := range opts {
		opt(b)
	}
	b.langName = languageName(b.lang)
	return b
}

// NewBuilderForLanguage parses a BCP 47 tag such as "zh-Hans" or "ja".
func NewBuilderForLanguage(tag string) (*Builder, error) {
	if strings.TrimSpace(tag) == "" {
		return NewBuilder(), nil
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return nil, fmt.Errorf("prompt language %q: %w", tag, err)
	}
	return NewBuilder(WithLanguage(parsed)), nil
}

func languageName(tag language.Tag) string {
	english := display.Tags(language.English).Name(tag)
	self := display.Self.Name(tag)
	switch {
	case english == "":
		return tag.String()
	case self == "" || self == english:
		return english
	default:
		return fmt.Sprintf("%s (%s)", english, self)
	}
}

// Language returns the configured local language tag.
func (b *Builder) Language() language.Tag {
	return b.lang
}

// LanguageName returns the display name used in prompts.
func (b *Builder) LanguageName() string {
	return b.langName
}

// Build renders the prompt for one section of item. closingDate may be blank;
// deadlines then carry a placeholder instead of a date.
func (b *Builder) Build(item *ncr.Item, section Section, closingDate string) (Prompt, error) {
	tmpl, ok := templates[section]
	if !ok {
		return Prompt{}, fmt.Errorf("%w: %q", ErrUnknownSection, section)
	}
	if item == nil {
		item = &ncr.Item{}
	}
	tc := &templateContext{
		item:     item,
		closing:  strings.TrimSpace(closingDate),
		langName: b.langName,
	}
	var body strings.Builder
	body.WriteString(tc.background())
	body.WriteString("\n")
	tmpl(tc, &body)
	body.WriteString("\n\n")
	body.WriteString(tc.outputFormat(section))
	return Prompt{System: b.systemInstruction(), User: strings.TrimSpace(body.String())}, nil
}

func (b *Builder) systemInstruction() string {
	var s strings.Builder
	s.WriteString("You are a senior IATF 16949 lead auditor and quality management system expert.\n")
	s.WriteString("You help automotive suppliers answer CARA (Common Audit Report Application) non-conformance reports, and help auditors review those answers.\n\n")
	s.WriteString("Existing content comes first:\n")
	s.WriteString("- A field may already contain a partial answer. Understand it and keep it.\n")
	s.WriteString("- Complete and extend existing content instead of regenerating it.\n")
	s.WriteString("- If the content is already complete, only polish the wording.\n\n")
	s.WriteString("IATF CARA timeline, counted from the day after the closing meeting (Day 0):\n")
	s.WriteString("- Day 0-2: S1 containment\n")
	s.WriteString("- Day 2-5: S2 implementation evidence (3 days after S1)\n")
	s.WriteString("- Day 5-8: S3 root cause analysis (3 days after S2)\n")
	s.WriteString("- Day 8-9: impact statement and S4 root cause result (1 day after S3)\n")
	s.WriteString("- Day 9-11: S5 systemic corrective action (2 days after S4)\n")
	s.WriteString("- Day 11-26: S6 implementation evidence (15 days after S5)\n")
	s.WriteString("- Day 26-31: S7 effectiveness verification (3-5 days after S6)\n\n")
	s.WriteString("Rules:\n")
	fmt.Fprintf(&s, "1. Bilingual output: every answer is a %s paragraph immediately followed by its English translation, unless the task says otherwise.\n", b.langName)
	s.WriteString("2. Use formal quality terminology (root cause, systemic, containment, poka-yoke, FMEA, control plan, PDCA).\n")
	s.WriteString("3. Root cause analysis follows 5-Why; corrective actions follow PDCA.\n")
	s.WriteString("4. Output must fit directly into the named CARA field.\n")
	s.WriteString("5. Every action is specific, executable, and verifiable.\n")
	s.WriteString("6. Respect the IATF deadlines and name a due date and an owner for every action.\n")
	return s.String()
}

type templateContext struct {
	item     *ncr.Item
	closing  string
	langName string
}

func (tc *templateContext) deadline(offset int) string {
	return Deadline(tc.closing, offset)
}

func (tc *templateContext) background() string {
	it := tc.item
	var s strings.Builder
	s.WriteString("Non-conformance background:\n")
	fmt.Fprintf(&s, "- Standard clause: %s\n", it.StandardClause)
	fmt.Fprintf(&s, "- Requirement: %s\n", it.Requirement)
	fmt.Fprintf(&s, "- Non-conformance statement: %s\n", it.Statement)
	fmt.Fprintf(&s, "- Objective evidence: %s\n", it.Evidence)
	fmt.Fprintf(&s, "- Process: %s\n", it.Process)
	if it.Classification != "" {
		fmt.Fprintf(&s, "- Classification: %s\n", it.Classification)
	}
	if tc.closing != "" {
		fmt.Fprintf(&s, "- Closing meeting date: %s\n", tc.closing)
	}
	return s.String()
}

// existing renders prior content with a preserve instruction, or a generate
// instruction when the field is empty.
func existing(content, label string) string {
	if strings.TrimSpace(content) != "" {
		return fmt.Sprintf("[Existing %s - %s it, do not overwrite]\n%s\n", label, preserveInstruction, strings.TrimSpace(content))
	}
	return fmt.Sprintf("[%s - %s content]\n", label, generateInstruction)
}

func (tc *templateContext) outputFormat(section Section) string {
	if !section.Bilingual() {
		return "Output format: a plain list of file names, one per line, with no translation and no commentary."
	}
	return fmt.Sprintf("Output format: one paragraph in %s, a line break, then the same paragraph in English.", tc.langName)
}

func optionalLine(label, value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return fmt.Sprintf("%s: %s\n", label, strings.TrimSpace(value))
}

func orNotProvided(value string) string {
	if strings.TrimSpace(value) == "" {
		return "not provided"
	}
	return strings.TrimSpace(value)
}
