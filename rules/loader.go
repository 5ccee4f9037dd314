package rules

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"gopkg.in/yaml.v3"
)

// Loader decodes rule files. Variables are visible as var.<name> in HCL
// expressions and in ${...} templates inside YAML strings.
type Loader struct {
	logger *slog.Logger
	vars   map[string]string
}

func NewLoader(logger *slog.Logger, vars map[string]string) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{logger: logger, vars: vars}
}

// Load reads path and decodes it according to its extension: .yaml, .yml or .hcl.
func (l *Loader) Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule: %w", err)
	}

	l.logger.Debug("loading rule file", "path", path, "vars", len(l.vars))

	var f *File
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		f, err = l.ParseYAML(data)
	case ".hcl":
		f, err = l.ParseHCL(data, path)
	default:
		return nil, fmt.Errorf("%w: %s: unsupported extension %q", ErrInvalidRule, path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	l.logger.Debug("rule file loaded", "path", path, "mode", f.Mode)
	return f, nil
}

func (l *Loader) ParseYAML(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRule, err)
	}

	if err := f.expand(l.evalContext()); err != nil {
		return nil, err
	}
	return &f, nil
}

func (l *Loader) ParseHCL(data []byte, filename string) (*File, error) {
	parser := hclparse.NewParser()

	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: failed to parse: %w", ErrInvalidRule, diags)
	}

	var f File
	diags = gohcl.DecodeBody(file.Body, l.evalContext(), &f)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: failed to decode: %w", ErrInvalidRule, diags)
	}
	return &f, nil
}

func (l *Loader) evalContext() *hcl.EvalContext {
	vals := make(map[string]cty.Value, len(l.vars))
	for name, v := range l.vars {
		vals[name] = cty.StringVal(v)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"var": cty.ObjectVal(vals)},
	}
}

// expand evaluates ${...} templates in every string field.
func (f *File) expand(ctx *hcl.EvalContext) error {
	fields := []*string{&f.Mode, &f.Scope, &f.Anchor, &f.Name, &f.Tag, &f.NotFound}
	for i := range f.ReferenceNodes {
		fields = append(fields, &f.ReferenceNodes[i])
	}
	for i := range f.ReferenceFacets {
		fields = append(fields, &f.ReferenceFacets[i].Node, &f.ReferenceFacets[i].Kind)
	}
	for i := range f.Requires {
		fields = append(fields, &f.Requires[i])
	}

	for _, field := range fields {
		s, err := template(*field, ctx)
		if err != nil {
			return err
		}
		*field = s
	}
	return nil
}

func template(s string, ctx *hcl.EvalContext) (string, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}

	expr, diags := hclsyntax.ParseTemplate([]byte(s), "", hcl.InitialPos)
	if diags.HasErrors() {
		return "", fmt.Errorf("%w: template %q: %w", ErrInvalidRule, s, diags)
	}

	v, diags := expr.Value(ctx)
	if diags.HasErrors() {
		return "", fmt.Errorf("%w: template %q: %w", ErrInvalidRule, s, diags)
	}

	v, err := convert.Convert(v, cty.String)
	if err != nil {
		return "", fmt.Errorf("%w: template %q: %w", ErrInvalidRule, s, err)
	}
	if v.IsNull() || !v.IsKnown() {
		return "", fmt.Errorf("%w: template %q has no value", ErrInvalidRule, s)
	}
	return v.AsString(), nil
}
