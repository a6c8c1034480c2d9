package triage

import (
	"embed"
	"os"
	"path/filepath"
)

//go:embed prompts/*.txt
var promptFS embed.FS

// Prompts holds the completion templates. Each contains the {{text}}
// placeholder; Repair also contains {{shape}}.
type Prompts struct {
	Classify  string
	Summarize string
	Repair    string
}

const shapePlaceholder = "{{shape}}"

const (
	classificationShape = `{"category":"<Complaint|Suggestion|Question|Praise>","justification":"<1 sentence>"}`
	summaryShape        = `{"summary":"<1 sentence>","reply":"<short, polite reply>"}`
)

func DefaultPrompts() Prompts {
	return Prompts{
		Classify:  mustPrompt("classify.txt"),
		Summarize: mustPrompt("summarize.txt"),
		Repair:    mustPrompt("repair.txt"),
	}
}

// LoadPrompts starts from the built-in templates and replaces each one found
// in dir (classify.txt, summarize.txt, repair.txt).
func LoadPrompts(dir string) (Prompts, error) {
	p := DefaultPrompts()
	if dir == "" {
		return p, nil
	}
	for name, dst := range map[string]*string{
		"classify.txt":  &p.Classify,
		"summarize.txt": &p.Summarize,
		"repair.txt":    &p.Repair,
	} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return p, err
		}
		*dst = string(data)
	}
	return p, nil
}

func mustPrompt(name string) string {
	data, err := promptFS.ReadFile("prompts/" + name)
	if err != nil {
		panic(err)
	}
	return string(data)
}
