package types

import (
	"fmt"
	"strings"
)

// AgentType is one of the closed set of prediction roles.
type AgentType string

const (
	AgentValuation AgentType = "valuation"
	AgentPolicy    AgentType = "policy"
	AgentNews      AgentType = "news"
	AgentRisk      AgentType = "risk"
)

// AllAgentTypes lists every known agent in a stable order.
func AllAgentTypes() []AgentType {
	return []AgentType{AgentValuation, AgentPolicy, AgentNews, AgentRisk}
}

func (a AgentType) Valid() bool {
	switch a {
	case AgentValuation, AgentPolicy, AgentNews, AgentRisk:
		return true
	default:
		return false
	}
}

func (a AgentType) String() string { return string(a) }

// ParseAgentType normalizes and validates an agent name.
func ParseAgentType(raw string) (AgentType, error) {
	a := AgentType(strings.ToLower(strings.TrimSpace(raw)))
	if !a.Valid() {
		return "", fmt.Errorf("unknown agent type %q", raw)
	}
	return a, nil
}

// ModelType identifies a model lineage. Each agent owns exactly one.
type ModelType string

func (m ModelType) String() string { return string(m) }

// ModelTypeFor returns the model lineage trained for the agent.
func ModelTypeFor(agent AgentType) ModelType {
	return ModelType(string(agent) + "_model")
}

// AgentForModelType reverses ModelTypeFor.
func AgentForModelType(m ModelType) (AgentType, bool) {
	name, ok := strings.CutSuffix(string(m), "_model")
	if !ok {
		return "", false
	}
	a := AgentType(name)
	return a, a.Valid()
}
