package types

import "encoding/json"

// ContentPayload configures a content block. When LLMEnabled is false the
// Text is a literal template with {{var}} substitutions; when true it is the
// prompt sent to the model.
type ContentPayload struct {
	Text        string   `json:"text"`
	LLMEnabled  bool     `json:"llm_enabled"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// InputPayload configures a free-text input block. Prompt is the extraction
// prompt run against the model; Vars names the profile variables the model is
// expected to parse out of the learner's answer.
type InputPayload struct {
	Placeholder string   `json:"placeholder,omitempty"`
	Prompt      string   `json:"prompt"`
	Vars        []string `json:"vars"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// OptionsPayload configures a single-choice block. The chosen option's Value
// is written to the profile variable named by Var.
type OptionsPayload struct {
	Var     string         `json:"var"`
	Options []OptionChoice `json:"options"`
}

type OptionChoice struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// GotoPayload configures a branch block: the current value of Var is matched
// against Rules in order, first exact match wins.
type GotoPayload struct {
	Var   string     `json:"var"`
	Rules []GotoRule `json:"rules"`
}

type GotoRule struct {
	Value      string `json:"value"`
	OutlineBID string `json:"outline_bid"`
}

// ButtonPayload configures a plain continue button.
type ButtonPayload struct {
	Label string `json:"label,omitempty"`
}

// PaymentPayload configures a payment gate.
type PaymentPayload struct {
	Price int64 `json:"price,omitempty"`
}

func (b *Block) ContentPayload() (*ContentPayload, error) {
	var p ContentPayload
	if err := json.Unmarshal(b.Payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (b *Block) InputPayload() (*InputPayload, error) {
	var p InputPayload
	if err := json.Unmarshal(b.Payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (b *Block) OptionsPayload() (*OptionsPayload, error) {
	var p OptionsPayload
	if err := json.Unmarshal(b.Payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (b *Block) GotoPayload() (*GotoPayload, error) {
	var p GotoPayload
	if err := json.Unmarshal(b.Payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
