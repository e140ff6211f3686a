package prompt

import (
	"fmt"
	"strings"

	"github.com/devletter/newsletterd/internal/model"
)

// Template drives generation for one category: question budget, sampling
// temperature, and the editorial focus baked into the prompt.
type Template struct {
	Category      model.Category
	Label         string
	QuestionCount int
	Tone          string
	Temperature   float64
	Focus         string
	Guidelines    []string
}

const (
	defaultQuestionCount = 5
	defaultTemperature   = 0.45
)

var baseGuidelines = []string{
	"Ask about decisions made during incidents, outages, or production issues.",
	"Cover technology trade-offs, monitoring strategy, and performance work.",
	"Never reference internal code names or specific company names.",
}

var templates = map[model.Category]Template{
	model.CategoryBackend: {
		Tone:  "hands-on",
		Focus: "large-scale distributed systems, traffic surges, failure recovery",
		Guidelines: []string{
			"Include data-consistency and horizontal/vertical scaling transitions.",
		},
	},
	model.CategoryDatabase: {
		Tone:  "optimization",
		Focus: "data modeling, query tuning, replication and sharding, disaster readiness",
		Guidelines: []string{
			"Include transaction isolation levels, backup/restore, and observability.",
		},
	},
	model.CategoryNetwork: {
		Tone:  "incident-response",
		Focus: "multi-region network design, CDN, security incident handling",
		Guidelines: []string{
			"Mix in DDoS, TLS, and routing performance/stability questions.",
		},
	},
	model.CategoryJava: {
		Tone:  "hands-on",
		Focus: "JVM tuning, modular architecture, GC strategy, legacy migration",
		Guidelines: []string{
			"Ask about real JVM flag changes, thread management, and verification.",
		},
	},
	model.CategorySpring: {
		Tone:  "strategy",
		Focus: "Spring Boot 3, MVC and reactive stacks, security, module boundaries",
		Guidelines: []string{
			"Include criteria for choosing AOP, Data, Cloud, and Batch subprojects.",
		},
	},
	model.CategoryDevOps: {
		Tone:        "experiment",
		Temperature: 0.55,
		Focus:       "CI/CD optimization, IaC, observability, release strategy",
		Guidelines: []string{
			"Ask about release gates, feature flags, rollbacks, platform engineering.",
		},
	},
	model.CategoryFrontend: {
		Tone:  "hands-on",
		Focus: "large SPA/MPA performance, accessibility, DX, bundling strategy",
		Guidelines: []string{
			"Include performance budgets, bundle splitting, design system upkeep.",
		},
	},
	model.CategoryAIML: {
		Tone:        "strategy",
		Temperature: 0.6,
		Focus:       "model operations (MLOps), data governance, prompt engineering",
		Guidelines: []string{
			"Include LLM safety, cost control, and orchestration strategies like RAG.",
		},
	},
}

// ForCategory returns the fully populated template for a category, or false
// for unsupported categories.
func ForCategory(category model.Category) (Template, bool) {
	t, ok := templates[category]
	if !ok {
		return Template{}, false
	}
	t.Category = category
	t.Label = category.Label()
	if t.QuestionCount <= 0 {
		t.QuestionCount = defaultQuestionCount
	}
	if t.Temperature <= 0 {
		t.Temperature = defaultTemperature
	}
	t.Guidelines = append(append([]string{}, baseGuidelines...), t.Guidelines...)
	return t, true
}

// Build renders the generation prompt for a category template.
func Build(t Template) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert interviewer for %s engineering leads. ", t.Label)
	fmt.Fprintf(&b, "Tone: %s / Focus: %s. ", t.Tone, t.Focus)
	fmt.Fprintf(&b, "Generate %d senior-level interview question & answer pairs. ", t.QuestionCount)
	b.WriteString("Each pair must include a question and a concise model answer describing the desired reasoning.\n")
	for _, g := range t.Guidelines {
		b.WriteString("- ")
		b.WriteString(g)
		b.WriteString("\n")
	}
	b.WriteString("\nOUTPUT FORMAT STRICTLY:\n")
	b.WriteString(`1. Output only a JSON array: [{"question": "...?", "answer": "..."}]` + "\n")
	b.WriteString("2. question: one sentence, at most 200 characters, ending with ?\n")
	b.WriteString("3. answer: 2-3 sentences, at most 600 characters, with concrete practice and numbers\n")
	b.WriteString("4. No text, Markdown, or comments outside the JSON\n")
	return b.String()
}
