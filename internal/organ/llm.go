package organ

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"organism/internal/inference"
)

// #region llm-organ
// LLMOrgan is the generic model-backed organ: a name, an instruction block,
// and the shared inference client. Every built-in reasoning component
// (decider, daydream, self-eval, ...) is an instance of this with a
// different instruction block.
type LLMOrgan struct {
	name         string
	instructions string
	client       *inference.Client
	options      map[string]any
}

// NewLLM creates a model-backed organ.
func NewLLM(name, instructions string, client *inference.Client, options map[string]any) *LLMOrgan {
	return &LLMOrgan{name: name, instructions: instructions, client: client, options: options}
}

// Name implements Organ.
func (o *LLMOrgan) Name() string { return o.name }

// Invoke implements Organ: builds the uniform prompt, calls the inference
// boundary, and parses the drives shape out of the reply.
func (o *LLMOrgan) Invoke(ctx context.Context, in Input) (Result, error) {
	content, err := o.client.Chat(ctx, o.buildMessages(in), o.options)
	if err != nil {
		return Result{}, fmt.Errorf("organ %s: %w", o.name, err)
	}
	return ParseResult(content), nil
}

func (o *LLMOrgan) buildMessages(in Input) []inference.Message {
	var sys strings.Builder
	if len(in.Axioms) > 0 {
		sys.WriteString("Axioms:\n")
		keys := make([]string, 0, len(in.Axioms))
		for k := range in.Axioms {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sys, "- %s: %s\n", k, in.Axioms[k])
		}
		sys.WriteString("\n")
	}
	sys.WriteString(o.instructions)

	var usr strings.Builder
	usr.WriteString("Current state:\n")
	usr.WriteString(in.StateSummary)
	if len(in.Context) > 0 {
		if b, err := json.Marshal(in.Context); err == nil {
			usr.WriteString("\n\nContext:\n")
			usr.Write(b)
		}
	}

	return []inference.Message{
		{Role: "system", Content: sys.String()},
		{Role: "user", Content: usr.String()},
	}
}
// #endregion llm-organ
