package genconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/hewland/promptmix/internal/effects"
	"github.com/hewland/promptmix/internal/prompts"
)

// Generator turns free-text descriptions into validated configuration
// shapes, falling back to built-ins on any failure.
type Generator struct {
	client *Client
}

// NewGenerator creates a generator backed by a configuration client.
func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

const bankSystemPrompt = `You are a configuration generator for a prompt-steered music mixer.

Given a style description, output a JSON array of exactly 16 prompt knobs.
Each knob: {"text": "<2-4 word musical descriptor>", "color": "<#rrggbb hex>"}

Rules:
- Mix genres, instruments, textures, and moods relevant to the style
- Every text must be distinct and usable as a generative-music prompt
- Colors: vivid, varied hex values

Output ONLY the JSON array. No prose, no code fences.`

const effectSystemPrompt = `You are a configuration generator for an audio effects chain
(convolution reverb, feedback delay, biquad filter).

Given a description, output ONE JSON object:
{"reverb": "none|small-room|large-hall|cave",
 "delay": {"enabled": bool, "time": seconds, "feedback": 0..1},
 "filter": {"enabled": bool, "type": "lowpass|highpass|bandpass|notch", "frequency": hz, "q": number}}

Output ONLY the JSON object. No prose, no code fences.`

// PromptBank asks the service for a knob layout matching a style
// description. The result is normalized to the fixed knob count; any
// failure falls back to the default bank.
func (g *Generator) PromptBank(ctx context.Context, style string) []prompts.Config {
	raw, err := g.client.Generate(ctx, bankSystemPrompt, "Style: "+style)
	if err != nil {
		log.Printf("Bank generation failed: %v", err)
		return prompts.NormalizeBank(nil)
	}

	bank, err := ParsePromptBank(raw)
	if err != nil {
		log.Printf("Bank generation returned unusable JSON: %v", err)
		return prompts.NormalizeBank(nil)
	}
	return bank
}

// EffectParams asks the service for effect parameters matching a free-text
// description. Failures fall back to the neutral defaults.
func (g *Generator) EffectParams(ctx context.Context, description string) effects.Params {
	raw, err := g.client.Generate(ctx, effectSystemPrompt, "Description: "+description)
	if err != nil {
		log.Printf("Effect generation failed: %v", err)
		return effects.Defaults()
	}

	p, err := ParseEffectParams(raw)
	if err != nil {
		log.Printf("Effect generation returned unusable JSON: %v", err)
		return effects.Defaults()
	}
	return p
}

// ParsePromptBank extracts a knob layout from raw LLM output, tolerating
// code fences and surrounding prose, and normalizes it to the fixed count.
func ParsePromptBank(raw string) ([]prompts.Config, error) {
	body := extractJSON(raw, '[', ']')
	if body == "" {
		return nil, fmt.Errorf("no JSON array in response")
	}

	var configs []prompts.Config
	if err := json.Unmarshal([]byte(body), &configs); err != nil {
		return nil, fmt.Errorf("parse bank: %w", err)
	}
	if len(configs) == 0 {
		return nil, fmt.Errorf("empty bank")
	}
	return prompts.NormalizeBank(configs), nil
}

// ParseEffectParams extracts and validates an effect-parameter object.
func ParseEffectParams(raw string) (effects.Params, error) {
	body := extractJSON(raw, '{', '}')
	if body == "" {
		return effects.Params{}, fmt.Errorf("no JSON object in response")
	}

	p := effects.Defaults()
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return effects.Params{}, fmt.Errorf("parse effect params: %w", err)
	}
	if err := p.Validate(); err != nil {
		return effects.Params{}, err
	}
	return p, nil
}

// extractJSON returns the outermost open..close span in raw, stripping any
// fences or prose around it.
func extractJSON(raw string, open, shut byte) string {
	start := strings.IndexByte(raw, open)
	end := strings.LastIndexByte(raw, shut)
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}
