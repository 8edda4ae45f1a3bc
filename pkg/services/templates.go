package services

import (
	"time"

	"github.com/dukex/conductor/pkg/models"
)

const (
	ResearchTemplateID       = "research_template"
	DataProcessingTemplateID = "data_processing_template"
	AutomationTemplateID     = "automation_template"
)

var builtinEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// BuiltinTemplates returns fresh copies of the templates shipped with the service.
func BuiltinTemplates() []*models.Workflow {
	return []*models.Workflow{
		researchTemplate(),
		dataProcessingTemplate(),
		automationTemplate(),
	}
}

func builtinStep(id, name string, stepType models.StepType, config map[string]any) *models.WorkflowStep {
	step := models.NewWorkflowStep(id, name, stepType)
	step.Config = config

	return step
}

func builtinTemplate(id, name, description string, steps []*models.WorkflowStep, variables map[string]any, tags ...string) *models.Workflow {
	return &models.Workflow{
		ID:          id,
		Name:        name,
		Description: description,
		Version:     models.InitialVersion,
		Steps:       steps,
		Variables:   variables,
		Tags:        tags,
		CreatedBy:   "system",
		CreatedAt:   builtinEpoch,
		UpdatedAt:   builtinEpoch,
	}
}

func researchTemplate() *models.Workflow {
	return builtinTemplate(
		ResearchTemplateID,
		"Research Workflow",
		"Search the web, browse the results and summarize the findings",
		[]*models.WorkflowStep{
			builtinStep("search", "Web Search", models.StepTypeTool, map[string]any{
				"tool":   "web_search",
				"params": map[string]any{"query": "{query}"},
			}),
			builtinStep("browse", "Browse Results", models.StepTypeLoop, map[string]any{
				"items":    "{search_output.results}",
				"variable": "url",
				"body": map[string]any{
					"tool":   "web_browser",
					"params": map[string]any{"url": "{url}"},
				},
			}),
			builtinStep("summarize", "Summarize Findings", models.StepTypeAgent, map[string]any{
				"agent": "researcher",
				"task":  "Summarize the gathered information",
			}),
		},
		map[string]any{"query": ""},
		"research", "web", "template",
	)
}

func dataProcessingTemplate() *models.Workflow {
	return builtinTemplate(
		DataProcessingTemplateID,
		"Data Processing Workflow",
		"Read a data file, analyze it and save a report",
		[]*models.WorkflowStep{
			builtinStep("read_data", "Read Data", models.StepTypeTool, map[string]any{
				"tool":   "file_manager",
				"params": map[string]any{"operation": "read", "path": "{input_file}"},
			}),
			builtinStep("analyze", "Analyze Data", models.StepTypeAgent, map[string]any{
				"agent": "analyst",
				"task":  "Analyze the data and produce insights",
			}),
			builtinStep("save_report", "Save Report", models.StepTypeTool, map[string]any{
				"tool": "file_manager",
				"params": map[string]any{
					"operation": "write",
					"path":      "report.md",
					"content":   "{analyze_output}",
				},
			}),
		},
		map[string]any{"input_file": ""},
		"data", "analysis", "template",
	)
}

func automationTemplate() *models.Workflow {
	check := builtinStep("check_status", "Check Status", models.StepTypeTool, map[string]any{
		"tool":   "shell_execute",
		"params": map[string]any{"command": "{status_command}"},
	})
	check.OnError = models.ErrorPolicySkip

	return builtinTemplate(
		AutomationTemplateID,
		"System Automation",
		"Check a system status and run an action or a fallback",
		[]*models.WorkflowStep{
			check,
			builtinStep("conditional_action", "Conditional Action", models.StepTypeCondition, map[string]any{
				"condition": "check_status_output.success",
				"then": map[string]any{
					"tool":   "shell_execute",
					"params": map[string]any{"command": "{action_command}"},
				},
				"else": map[string]any{
					"tool":   "shell_execute",
					"params": map[string]any{"command": "{fallback_command}"},
				},
			}),
		},
		map[string]any{"status_command": "", "action_command": "", "fallback_command": ""},
		"automation", "system", "template",
	)
}
