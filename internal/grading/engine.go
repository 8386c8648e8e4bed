package grading

import (
	"sort"

	"github.com/mind-engage/mindengage-capa/internal/xmltree"
)

// Engine options

type Option func(*config)

type config struct {
	Masking bool // random mask_N choice names for multiple choice
}

func WithMasking(b bool) Option { return func(c *config) { c.Masking = b } }

type builder func(b *Base, cfg *config) (Response, error)

type registration struct {
	spec  typeSpec
	build builder
}

// Registry maps response tags to their types.
type Registry struct {
	types map[string]registration
	cfg   config
}

// NewRegistry installs the built-in response types.
func NewRegistry(opts ...Option) *Registry {
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}
	return &Registry{
		cfg: *cfg,
		types: map[string]registration{
			"choiceresponse":         {choiceSpec, newChoiceResponse},
			"multiplechoiceresponse": {multipleChoiceSpec, newMultipleChoiceResponse},
			"truefalseresponse":      {multipleChoiceSpec, newTrueFalseResponse},
			"optionresponse":         {optionSpec, newOptionResponse},
			"numericalresponse":      {numericalSpec, newNumericalResponse},
			"stringresponse":         {stringSpec, newStringResponse},
			"formularesponse":        {formulaSpec, newFormulaResponse},
			"customresponse":         {customSpec, newCustomResponse},
			"symbolicresponse":       {symbolicSpec, newSymbolicResponse},
			"coderesponse":           {codeSpec, newCodeResponse},
			"externalresponse":       {externalSpec, newExternalResponse},
			"schematicresponse":      {schematicSpec, newSchematicResponse},
			"imageresponse":          {imageSpec, newImageResponse},
			"annotationresponse":     {annotationSpec, newAnnotationResponse},
			"choicetextresponse":     {choiceTextSpec, newChoiceTextResponse},
			"javascriptresponse":     {javascriptSpec, newJavascriptResponse},
		},
	}
}

// Has reports whether tag names a response type.
func (r *Registry) Has(tag string) bool {
	_, ok := r.types[tag]
	return ok
}

// Tags returns the registered response tags, sorted.
func (r *Registry) Tags() []string {
	out := make([]string, 0, len(r.types))
	for t := range r.types {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// InputTags returns every input element tag some response type accepts.
func (r *Registry) InputTags() []string {
	seen := map[string]bool{}
	for _, reg := range r.types {
		for _, t := range reg.spec.allowedInputs {
			seen[t] = true
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// New validates el against its type's structural contract and runs the
// type's setup. inputs are the answer-field elements in document order.
func (r *Registry) New(el *xmltree.Element, inputs []*xmltree.Element, ctx *Context, sys *System) (Response, error) {
	reg, ok := r.types[el.Tag]
	if !ok {
		return nil, specErrorf("unknown response type %s\nSee XML source line %s", el.Tag, el.SourceLine())
	}
	b, err := newBase(el, inputs, ctx, sys, reg.spec)
	if err != nil {
		return nil, err
	}
	return reg.build(b, &r.cfg)
}
