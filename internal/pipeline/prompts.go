package pipeline

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"vidscribe/internal/services/llm"
)

// Prompt keys accepted in the override file.
const (
	PromptOptimize      = "optimize"
	PromptTranslate     = "translate"
	PromptSummarize     = "summarize"
	PromptSummarizePart = "summarize-part"
	PromptIntegrate     = "integrate"
)

// Prompt is one system/user template pair with generation limits.
type Prompt struct {
	System      string  `yaml:"system"`
	User        string  `yaml:"user"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// PromptData is the template input.
type PromptData struct {
	// Language is the output language as it should appear in the prompt.
	Language string
	// SourceLanguage is the language of Text, when known.
	SourceLanguage string
	Title          string
	Text           string
	Part           int
	Total          int
}

// Prompts holds the full catalog.
type Prompts map[string]Prompt

// Render fills the templates of key into a generation request.
func (p Prompts) Render(key string, data PromptData) (llm.Request, error) {
	prompt, ok := p[key]
	if !ok {
		return llm.Request{}, fmt.Errorf("prompt %q not defined", key)
	}
	system, err := render(key+".system", prompt.System, data)
	if err != nil {
		return llm.Request{}, err
	}
	user, err := render(key+".user", prompt.User, data)
	if err != nil {
		return llm.Request{}, err
	}
	return llm.Request{
		System:      system,
		Prompt:      user,
		MaxTokens:   prompt.MaxTokens,
		Temperature: prompt.Temperature,
	}, nil
}

func render(name, text string, data PromptData) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse prompt %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// LoadPrompts returns the built-in catalog with any entries from path laid
// over it. Fields left empty in the file keep their built-in value. An empty
// path returns the defaults.
func LoadPrompts(path string) (Prompts, error) {
	prompts := DefaultPrompts()
	if strings.TrimSpace(path) == "" {
		return prompts, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file: %w", err)
	}
	var overrides map[string]Prompt
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse prompts file: %w", err)
	}
	for key, override := range overrides {
		base, ok := prompts[key]
		if !ok {
			return nil, fmt.Errorf("prompts file: unknown prompt %q", key)
		}
		if strings.TrimSpace(override.System) != "" {
			base.System = override.System
		}
		if strings.TrimSpace(override.User) != "" {
			base.User = override.User
		}
		if override.MaxTokens > 0 {
			base.MaxTokens = override.MaxTokens
		}
		if override.Temperature > 0 {
			base.Temperature = override.Temperature
		}
		prompts[key] = base
	}
	for key := range overrides {
		if _, err := prompts.Render(key, PromptData{}); err != nil {
			return nil, fmt.Errorf("prompts file: %w", err)
		}
	}
	return prompts, nil
}

// DefaultPrompts returns the built-in catalog.
func DefaultPrompts() Prompts {
	return Prompts{
		PromptOptimize: {
			System: `You are a professional transcript editor. Fix recognition errors and improve fluency without changing the meaning, language or speaker perspective of the text. Never remove content; only timestamps and meta information may be dropped. Never change pronouns: this may be an interview where the interviewer says "you" and the guest says "I" or "we".`,
			User: `Clean up and format the following speech transcript.

Content:
1. Correct typos, homophones and misheard proper nouns.
2. Complete broken sentences and add punctuation where needed, keeping the original language.
3. Keep natural repetitions and spoken style; do not summarize or shorten.

Paragraphs:
- Group 1-8 related sentences per paragraph by topic.
- Keep each paragraph under 400 characters.
- Separate paragraphs with a blank line.

If the text starts with a bracketed context note, it repeats the end of the previous part. Use it for continuity only and do not repeat it.

Transcript:
{{.Text}}`,
			MaxTokens:   4000,
			Temperature: 0.1,
		},
		PromptTranslate: {
			System: `You are a professional translator. Translate {{if .SourceLanguage}}{{.SourceLanguage}} {{end}}text into {{.Language}} accurately and naturally.
- Keep the original structure, paragraph breaks and Markdown formatting.
- Keep technical terms precise.
- Do not add explanations or notes.{{if gt .Total 1}}
This is part {{.Part}} of {{.Total}} of a longer document; stay consistent with the surrounding parts.{{end}}`,
			User: `Translate the following text into {{.Language}}:

{{.Text}}`,
			MaxTokens:   4000,
			Temperature: 0.1,
		},
		PromptSummarize: {
			System: `You are a professional content analyst. Write a well-structured summary in {{.Language}}.
- Extract the main topics, core arguments and conclusions.
- Start a new paragraph whenever the topic or focus shifts; each paragraph covers one main point.
- Separate paragraphs with a blank line and write entirely in {{.Language}}.`,
			User: `Summarize the following content in {{.Language}}{{if .Title}} (title: {{.Title}}){{end}}:

{{.Text}}

Prefer natural paragraphs over decorative headings, cover early and late content evenly and keep the language clear and concise.`,
			MaxTokens:   3500,
			Temperature: 0.3,
		},
		PromptSummarizePart: {
			System: `You are a summarization expert. Write a dense summary in {{.Language}} of part {{.Part}} of {{.Total}} of a longer text. Prefer natural paragraphs, highlight new information and how it relates to the overall narrative, and avoid headings. Aim for 120-220 words.`,
			User: `[Part {{.Part}}/{{.Total}}] Summarize the key points of this text in {{.Language}}:

{{.Text}}

Output the summary only, without headings or separators.`,
			MaxTokens:   1000,
			Temperature: 0.3,
		},
		PromptIntegrate: {
			System: `You are a content integration expert. Merge several partial summaries into one complete, coherent summary in {{.Language}}. Remove duplication, order the content by theme or chronology, cover every part and separate paragraphs with a blank line.`,
			User: `Integrate the following partial summaries into one coherent summary in {{.Language}}:

{{.Text}}`,
			MaxTokens:   2500,
			Temperature: 0.3,
		},
	}
}
