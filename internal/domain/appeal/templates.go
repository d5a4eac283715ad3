package appeal

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/ehr/revcycle/internal/domain/claim"
)

// GeneralTemplate is used when neither the caller nor the denial category
// names a template.
const GeneralTemplate = "general"

// LetterData is what an appeal letter template can reference.
type LetterData struct {
	ClaimNumber  string
	PatientID    string
	PayerName    string
	ServiceDate  string
	TotalCharges string
	DenialCode   string
	DenialReason string
	DenialDate   string
	Level        Level
	Deadline     string
	Notes        string
	Today        string
}

// Templates is a fixed set of parsed letter templates keyed by name. It has
// no mutators and is safe for concurrent use.
type Templates struct {
	byName map[string]*template.Template
}

// NewTemplates parses every entry of raw. A general template is required.
func NewTemplates(raw map[string]string) (*Templates, error) {
	if _, ok := raw[GeneralTemplate]; !ok {
		return nil, fmt.Errorf("appeal templates: %q template is required", GeneralTemplate)
	}
	t := &Templates{byName: make(map[string]*template.Template, len(raw))}
	for name, body := range raw {
		tmpl, err := template.New(name).Option("missingkey=error").Parse(body)
		if err != nil {
			return nil, fmt.Errorf("failed to parse appeal template %q: %w", name, err)
		}
		t.byName[name] = tmpl
	}
	return t, nil
}

type templateFile struct {
	Templates map[string]string `yaml:"templates"`
}

// LoadTemplates reads a YAML file of the form
//
//	templates:
//	  general: |
//	    ...
//
// Built-in templates the file does not override stay available.
func LoadTemplates(path string) (*Templates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read appeal templates file: %w", err)
	}
	var f templateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal appeal templates: %w", err)
	}
	raw := make(map[string]string, len(defaultLetters)+len(f.Templates))
	for k, v := range defaultLetters {
		raw[k] = v
	}
	for k, v := range f.Templates {
		raw[k] = v
	}
	return NewTemplates(raw)
}

func DefaultTemplates() *Templates {
	t, err := NewTemplates(defaultLetters)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Templates) Has(name string) bool {
	_, ok := t.byName[name]
	return ok
}

func (t *Templates) Names() []string {
	out := make([]string, 0, len(t.byName))
	for name := range t.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// For returns the template for a denial category, or the general one.
func (t *Templates) For(category *string) string {
	if category != nil && t.Has(*category) {
		return *category
	}
	return GeneralTemplate
}

func (t *Templates) Render(name string, data LetterData) (string, error) {
	tmpl, ok := t.byName[name]
	if !ok {
		return "", fmt.Errorf("unknown appeal template %q", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render appeal template %q: %w", name, err)
	}
	return buf.String(), nil
}

const letterHeader = `{{.Today}}

To: {{if .PayerName}}{{.PayerName}}{{else}}Claims Review Department{{end}}
Re: Claim {{.ClaimNumber}}, date of service {{.ServiceDate}}, billed {{.TotalCharges}}
Request: {{.Level}} level appeal
`

const letterFooter = `{{if .Notes}}
Additional information: {{.Notes}}
{{end}}
Please respond by {{.Deadline}}.

Sincerely,
Billing Department
`

var defaultLetters = map[string]string{
	GeneralTemplate: letterHeader + `
We are requesting reconsideration of the above claim, denied on {{.DenialDate}}{{if .DenialCode}} with code {{.DenialCode}}{{end}}{{if .DenialReason}} ({{.DenialReason}}){{end}}.
The services were rendered and documented as billed. Supporting records are enclosed.
` + letterFooter,

	claim.DenialMedicalNecessity: letterHeader + `
The claim was denied on {{.DenialDate}} as not medically necessary{{if .DenialCode}} ({{.DenialCode}}){{end}}.
The enclosed clinical notes document the patient's condition and the reason each service was ordered.
We ask that the claim be reprocessed for payment.
` + letterFooter,

	claim.DenialCoding: letterHeader + `
The claim was denied on {{.DenialDate}} for a coding issue{{if .DenialCode}} ({{.DenialCode}}){{end}}.
The procedure and diagnosis codes have been reviewed against the documentation and are correct as submitted.
` + letterFooter,

	claim.DenialTimelyFiling: letterHeader + `
The claim was denied on {{.DenialDate}} for timely filing{{if .DenialCode}} ({{.DenialCode}}){{end}}.
Enclosed is proof of the original submission within the filing limit.
` + letterFooter,

	claim.DenialAuthorization: letterHeader + `
The claim was denied on {{.DenialDate}} for missing authorization{{if .DenialCode}} ({{.DenialCode}}){{end}}.
Enclosed is the authorization obtained before the date of service.
` + letterFooter,
}
