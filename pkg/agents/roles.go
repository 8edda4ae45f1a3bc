package agents

import "strings"

type Role string

const (
	RoleResearcher Role = "researcher"
	RoleCoder      Role = "coder"
	RoleAnalyst    Role = "analyst"
	RoleExecutor   Role = "executor"
)

// Roles lists the specialized roles in the order they are registered.
var Roles = []Role{RoleResearcher, RoleCoder, RoleAnalyst, RoleExecutor}

// ParseRole maps a role name to a known role. Anything unrecognised is
// handled by the researcher.
func ParseRole(name string) Role {
	role := Role(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Roles {
		if role == known {
			return role
		}
	}

	return RoleResearcher
}

type profile struct {
	description string
	expertise   string
	tools       []string
}

var profiles = map[Role]profile{
	RoleResearcher: {
		description: "Finds, reads and synthesizes information from the web and documents.",
		expertise:   "You are a Researcher Agent, an expert at finding and synthesizing information.",
		tools:       []string{"http_request"},
	},
	RoleCoder: {
		description: "Writes, runs and debugs code.",
		expertise:   "You are a Coder Agent, an expert programmer and debugger.",
		tools:       []string{"calculator", "http_request"},
	},
	RoleAnalyst: {
		description: "Analyzes data, computes statistics and reports insights.",
		expertise:   "You are an Analyst Agent, an expert in data analysis and visualization.",
		tools:       []string{"calculator", "http_request"},
	},
	RoleExecutor: {
		description: "Carries out system operations and API calls.",
		expertise:   "You are an Executor Agent, an expert in system operations and automation.",
		tools:       []string{"http_request", "log"},
	},
}

const reactInstructions = `

## How to work
For each step decide on one action. Reply with a single JSON object:
{"thought": "what you are doing and why", "action": "<tool name or final_answer>", "action_input": {...}}

When you have the answer reply with:
{"thought": "...", "action": "final_answer", "action_input": {"answer": "your complete answer"}}

## Available tools
`

func systemPrompt(role Role, toolDescriptions []string) string {
	var b strings.Builder

	b.WriteString(profiles[role].expertise)
	b.WriteString(reactInstructions)

	if len(toolDescriptions) == 0 {
		b.WriteString("none\n")
	}

	for _, line := range toolDescriptions {
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteString("\n")
	}

	return b.String()
}
