package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Policy is the optional TOML file naming independent entity types and the
// shell hooks that may veto metadata changes.
//
//	[[independent]]
//	type = "object"
//	subtype = "file"
//
//	[[hook]]
//	event = "create"
//	command = "test \"$KMETA_NAME\" != locked"
//	on_failure = "block"
type Policy struct {
	Independent []IndependentType `toml:"independent"`
	Hooks       []HookConfig      `toml:"hook"`
}

// IndependentType is an entity type whose metadata keeps its own access
// level. An empty subtype covers all subtypes.
type IndependentType struct {
	Type    string `toml:"type"`
	Subtype string `toml:"subtype,omitempty"`
}

// HookConfig is one shell hook. Empty Event and Subject match everything.
type HookConfig struct {
	Event     string `toml:"event,omitempty"`
	Subject   string `toml:"subject,omitempty"`
	Command   string `toml:"command"`
	Timeout   int    `toml:"timeout,omitempty"`
	OnFailure string `toml:"on_failure,omitempty"`
	Dir       string `toml:"dir,omitempty"`
}

// LoadPolicy reads the policy at path. An empty path or a missing file
// yields an empty policy; unknown keys are an error.
func LoadPolicy(path string) (*Policy, error) {
	p := &Policy{}
	if path == "" {
		return p, nil
	}
	md, err := toml.DecodeFile(path, p)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return nil, fmt.Errorf("policy %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("policy %s: unknown key %q", path, undecoded[0].String())
	}
	for i, ind := range p.Independent {
		if ind.Type == "" {
			return nil, fmt.Errorf("policy %s: independent[%d]: type is required", path, i)
		}
	}
	return p, nil
}
