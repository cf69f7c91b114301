package web3

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChainDefinitions models the structure of configs/chain.yaml.
type ChainDefinitions struct {
	Chains map[string]ChainDefinition `yaml:"chains"`
}

// ChainDefinition describes one chain's contract deployment.
type ChainDefinition struct {
	ChainID        uint64 `yaml:"chain_id"`
	TrackerAddress string `yaml:"tracker_address"`
	TokenAddress   string `yaml:"token_address"`
	Description    string `yaml:"description"`
}

// LoadChainDefinitions parses the YAML file containing per-chain contract
// addresses. An empty path yields an empty definition set so the daemon can
// run purely from config/environment overrides.
func LoadChainDefinitions(path string) (ChainDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return ChainDefinitions{Chains: map[string]ChainDefinition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ChainDefinitions{}, fmt.Errorf("read chain config: %w", err)
	}

	var defs ChainDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return ChainDefinitions{}, fmt.Errorf("parse chain config: %w", err)
	}
	if defs.Chains == nil {
		defs.Chains = map[string]ChainDefinition{}
	}
	return defs, nil
}

// Override replaces the tracker/token addresses on one chain, creating the
// definition when absent. Deploy environments inject addresses through the
// process environment and this is how they land in the registry.
func (d *ChainDefinitions) Override(name string, chainID uint64, trackerAddr, tokenAddr string) {
	if d.Chains == nil {
		d.Chains = map[string]ChainDefinition{}
	}
	def := d.Chains[name]
	def.ChainID = chainID
	if strings.TrimSpace(trackerAddr) != "" {
		def.TrackerAddress = trackerAddr
	}
	if strings.TrimSpace(tokenAddr) != "" {
		def.TokenAddress = tokenAddr
	}
	d.Chains[name] = def
}
