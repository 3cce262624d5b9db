package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/docdesk/internal/agents"
	"github.com/jackzampolin/docdesk/internal/api"
	"github.com/jackzampolin/docdesk/internal/render"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Classification and analysis agents",
}

type agentList []agents.Agent

func (l agentList) Text() string { return render.AgentTable(l) }

var agentsListType string

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if _, err := a.requireLogin(cmd.Context()); err != nil {
				return err
			}
			if err := a.agents.Fetch(cmd.Context()); err != nil {
				return err
			}
			list := a.agents.List()
			if agentsListType != "" {
				t, err := agents.ParseType(agentsListType)
				if err != nil {
					return err
				}
				list = a.agents.ByType(t)
			}
			return api.Output(agentList(list))
		})
	},
}

var (
	agentDraft    agents.Draft
	agentType     string
	agentKBFile   string
	agentDisabled bool
)

var agentsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an agent",
	Long: `Create a classification or analysis agent.

Classification agents need --classifier-prompt; analysis agents need
--criteria. --knowledge-base takes a JSON file holding a list of items
with json_data, main_category, sub_category and topic.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if _, err := a.requireLogin(cmd.Context()); err != nil {
				return err
			}
			t, err := agents.ParseType(agentType)
			if err != nil {
				return err
			}
			d := agentDraft
			d.Status = !agentDisabled

			var created *agents.Agent
			if agentKBFile != "" {
				items, err := readKnowledgeBase(agentKBFile)
				if err != nil {
					return err
				}
				created, err = a.agents.CreateWithKnowledgeBase(cmd.Context(), d, t, items)
				if err != nil {
					return err
				}
			} else {
				created, err = a.agents.Create(cmd.Context(), d, t)
				if err != nil {
					return err
				}
			}
			if api.IsStructuredOutput() || created == nil {
				return api.Output(created)
			}
			fmt.Printf("Created %s agent %s\n", t, created.Name)
			return nil
		})
	},
}

func readKnowledgeBase(path string) ([]agents.KnowledgeBaseItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge base: %w", err)
	}
	var items []agents.KnowledgeBaseItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge base: %w", err)
	}
	return items, nil
}

var agentsUpdateCmd = &cobra.Command{
	Use:   "update <agent-id>",
	Short: "Change an agent's fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if _, err := a.requireLogin(cmd.Context()); err != nil {
				return err
			}
			var u agents.Update
			flags := cmd.Flags()
			for name, dst := range map[string]**string{
				"name":              &u.Name,
				"description":       &u.Description,
				"criteria":          &u.Criteria,
				"guidelines":        &u.Guidelines,
				"evaluators-prompt": &u.EvaluatorsPrompt,
				"classifier-prompt": &u.ClassifierPrompt,
			} {
				if flags.Changed(name) {
					v, _ := flags.GetString(name)
					*dst = &v
				}
			}
			updated, err := a.agents.Update(cmd.Context(), args[0], u)
			if err != nil {
				return err
			}
			return api.Output(updated)
		})
	},
}

var agentsDeleteCmd = &cobra.Command{
	Use:   "delete <agent-id>",
	Short: "Delete an agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if _, err := a.requireLogin(cmd.Context()); err != nil {
				return err
			}
			return a.agents.Delete(cmd.Context(), args[0])
		})
	},
}

var agentsToggleCmd = &cobra.Command{
	Use:   "toggle <agent-id> on|off",
	Short: "Enable or disable an agent",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var enabled bool
		switch args[1] {
		case "on":
			enabled = true
		case "off":
		default:
			return fmt.Errorf("expected on or off, got %q", args[1])
		}
		return withApp(func(a *app) error {
			if _, err := a.requireLogin(cmd.Context()); err != nil {
				return err
			}
			updated, err := a.agents.PowerToggle(cmd.Context(), args[0], enabled)
			if err != nil {
				return err
			}
			return api.Output(updated)
		})
	},
}

func init() {
	agentsListCmd.Flags().StringVar(&agentsListType, "type", "", "classification or analysis")

	f := agentsCreateCmd.Flags()
	f.StringVar(&agentType, "type", "", "classification or analysis")
	f.StringVar(&agentDraft.Name, "name", "", "Agent name")
	f.StringVar(&agentDraft.Description, "description", "", "Description")
	f.StringVar(&agentDraft.Criteria, "criteria", "", "Analysis criteria")
	f.StringVar(&agentDraft.Guidelines, "guidelines", "", "Guidelines")
	f.StringVar(&agentDraft.EvaluatorsPrompt, "evaluators-prompt", "", "Evaluator prompt")
	f.StringVar(&agentDraft.ClassifierPrompt, "classifier-prompt", "", "Classifier prompt")
	f.StringVar(&agentKBFile, "knowledge-base", "", "JSON file of knowledge base items")
	f.BoolVar(&agentDisabled, "disabled", false, "Create the agent switched off")

	u := agentsUpdateCmd.Flags()
	u.String("name", "", "Agent name")
	u.String("description", "", "Description")
	u.String("criteria", "", "Analysis criteria")
	u.String("guidelines", "", "Guidelines")
	u.String("evaluators-prompt", "", "Evaluator prompt")
	u.String("classifier-prompt", "", "Classifier prompt")

	agentsCmd.AddCommand(agentsListCmd, agentsCreateCmd, agentsUpdateCmd, agentsDeleteCmd, agentsToggleCmd)
	rootCmd.AddCommand(agentsCmd)
}
