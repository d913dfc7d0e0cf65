package service

import (
	_ "embed"

	yaml "gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var promptsYAML []byte

// Prompts holds the fixed instruction templates used by the summary call,
// the chat system prompt, the memory extractor and the digest narrative.
type Prompts struct {
	Summary          string `yaml:"summary"`
	ChatSystem       string `yaml:"chat_system"`
	ChatNoContext    string `yaml:"chat_no_context"`
	MemoryExtractor  string `yaml:"memory_extractor"`
	DigestNarrative  string `yaml:"digest_narrative"`
	DigestNoActivity string `yaml:"digest_no_activity"`
}

var prompts Prompts

func init() {
	if err := yaml.Unmarshal(promptsYAML, &prompts); err != nil {
		panic("prompts.yaml is malformed: " + err.Error())
	}
}

// GetPrompts returns the embedded prompt set.
func GetPrompts() *Prompts { return &prompts }
