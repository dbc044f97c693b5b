package catalog

import (
	"fmt"
	"strings"
)

// Recognized substitution variables. Anything else inside %...% is a
// TemplateError at resolve time, not a silent pass-through.
const (
	VarTenantID   = "tenant_id"
	VarTenantName = "tenant_name"
	VarRegion     = "region"
)

// TemplateError reports a placeholder that could not be substituted.
type TemplateError struct {
	Template string
	Variable string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("catalog: no value for placeholder %%%s%% in %q", e.Variable, e.Template)
}

// Expand substitutes %var% placeholders in tpl using vars. A literal
// percent sign is written %%. An unterminated or unknown placeholder
// yields a TemplateError.
func Expand(tpl string, vars map[string]string) (string, error) {
	if !strings.Contains(tpl, "%") {
		return tpl, nil
	}
	var b strings.Builder
	b.Grow(len(tpl))
	rest := tpl
	for {
		i := strings.IndexByte(rest, '%')
		if i < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		b.WriteString(rest[:i])
		rest = rest[i+1:]
		if rest == "" {
			return "", &TemplateError{Template: tpl, Variable: ""}
		}
		if rest[0] == '%' {
			b.WriteByte('%')
			rest = rest[1:]
			continue
		}
		j := strings.IndexByte(rest, '%')
		if j < 0 {
			return "", &TemplateError{Template: tpl, Variable: rest}
		}
		name := rest[:j]
		value, ok := vars[name]
		if !ok {
			return "", &TemplateError{Template: tpl, Variable: name}
		}
		b.WriteString(value)
		rest = rest[j+1:]
	}
}
