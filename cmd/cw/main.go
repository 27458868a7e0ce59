package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"crewline/internal/a2a"
	"crewline/internal/config"
	"crewline/internal/db"
	"crewline/internal/domain"
	"crewline/internal/engine"
	"crewline/internal/migrate"
	"crewline/internal/monitor"
	"crewline/internal/repo"
	"crewline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "cw",
	Short: "Crewline CLI",
	Long: `Crewline coordinates multi-agent engineering work.
- Workspace: your .crewline directory holding the database; crewline.yml configures the server and monitor.
- Organizations own teams; teams of agents run sprints; sprints hold work items.
- Work items move backlog -> in_progress -> in_review -> done, with blocked and send-back detours.
- Delegations hand items to agents under a session key; reviews gate merges.
- The escalation monitor flags delegations that time out and items stuck in blocked.
- Event log: diary of changes, view with 'cw log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CREWLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(orgCmd())
	rootCmd.AddCommand(teamCmd())
	rootCmd.AddCommand(sprintCmd())
	rootCmd.AddCommand(itemCmd())
	rootCmd.AddCommand(escalationCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(a2aCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfgPath := config.Path(workspace)
			if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
				if err := os.WriteFile(cfgPath, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", cfgPath)
			}
			fmt.Printf("Workspace ready, database at %s\n", db.Path(workspace))
			return nil
		},
	}
	return cmd
}

func orgCmd() *cobra.Command {
	org := &cobra.Command{Use: "org", Short: "Manage organizations"}
	org.AddCommand(orgCreateCmd())
	org.AddCommand(orgListCmd())
	org.AddCommand(orgShowCmd())
	return org
}

func orgCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.CreateOrganization(ctx, name, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "organization name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func orgListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List organizations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				orgs, err := r.ListOrganizations(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(orgs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, o := range orgs {
					tw.AppendRow(table.Row{o.ID, o.Name, o.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func orgShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				o, err := r.GetOrganization(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	return cmd
}

func teamCmd() *cobra.Command {
	team := &cobra.Command{Use: "team", Short: "Manage teams"}
	team.AddCommand(teamCreateCmd())
	team.AddCommand(teamListCmd())
	team.AddCommand(teamShowCmd())
	team.AddCommand(teamMembersCmd())
	return team
}

// parseMembers turns agent:role pairs into TeamMembers.
func parseMembers(specs []string) ([]domain.TeamMember, error) {
	members := make([]domain.TeamMember, 0, len(specs))
	for _, spec := range specs {
		agent, role, ok := strings.Cut(spec, ":")
		if !ok || agent == "" || role == "" {
			return nil, fmt.Errorf("invalid member %q, want agent-id:role", spec)
		}
		members = append(members, domain.TeamMember{AgentID: agent, Role: role})
	}
	return members, nil
}

func teamCreateCmd() *cobra.Command {
	var orgID, name string
	var memberSpecs []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create team",
		RunE: func(cmd *cobra.Command, args []string) error {
			members, err := parseMembers(memberSpecs)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTeam(ctx, engine.TeamCreateOptions{
					OrgID:   orgID,
					Name:    name,
					Members: members,
					ActorID: viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "organization id")
	cmd.Flags().StringVar(&name, "name", "", "team name")
	cmd.Flags().StringArrayVar(&memberSpecs, "member", []string{}, "member as agent-id:role (repeatable)")
	_ = cmd.MarkFlagRequired("org")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func teamListCmd() *cobra.Command {
	var orgID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List teams",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				teams, err := r.ListTeams(ctx, orgID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(teams)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Org", "Members"})
				for _, t := range teams {
					tw.AppendRow(table.Row{t.ID, t.Name, t.OrgID, len(t.Members)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "organization filter")
	return cmd
}

func teamShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				t, err := r.GetTeam(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func teamMembersCmd() *cobra.Command {
	var memberSpecs []string
	cmd := &cobra.Command{
		Use:   "members <team-id>",
		Short: "Replace team members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			members, err := parseMembers(memberSpecs)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.SetTeamMembers(ctx, args[0], members, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringArrayVar(&memberSpecs, "member", []string{}, "member as agent-id:role (repeatable)")
	return cmd
}

func sprintCmd() *cobra.Command {
	sprint := &cobra.Command{Use: "sprint", Short: "Manage sprints"}
	sprint.AddCommand(sprintCreateCmd())
	sprint.AddCommand(sprintListCmd())
	sprint.AddCommand(sprintTransitionCmd())
	sprint.AddCommand(sprintReportCmd())
	sprint.AddCommand(sprintRetroCmd())
	return sprint
}

func sprintCreateCmd() *cobra.Command {
	var teamID, name, budgetScope string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create sprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.CreateSprint(ctx, engine.SprintCreateOptions{
					TeamID:        teamID,
					Name:          name,
					BudgetScopeID: budgetScope,
					ActorID:       viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&teamID, "team", "", "team id")
	cmd.Flags().StringVar(&name, "name", "", "sprint name")
	cmd.Flags().StringVar(&budgetScope, "budget-scope", "", "budget scope id")
	_ = cmd.MarkFlagRequired("team")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func sprintListCmd() *cobra.Command {
	var f repo.SprintFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sprints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				sprints, err := r.ListSprints(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(sprints)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Team", "State"})
				for _, s := range sprints {
					tw.AppendRow(table.Row{s.ID, s.Name, s.TeamID, s.State})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.TeamID, "team", "", "team filter")
	cmd.Flags().StringVar(&f.State, "state", "", "state filter")
	return cmd
}

func sprintTransitionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transition <sprint-id> <state>",
		Short: "Transition sprint state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.TransitionSprint(ctx, args[0], args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func sprintReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <sprint-id>",
		Short: "Sprint progress report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report, err := e.SprintReport(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(report)
			})
		},
	}
	return cmd
}

func sprintRetroCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retrospective <sprint-id>",
		Short: "Sprint retrospective",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				retro, err := e.SprintRetrospective(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(retro)
			})
		},
	}
	return cmd
}

func itemCmd() *cobra.Command {
	item := &cobra.Command{Use: "item", Short: "Manage work items"}
	item.AddCommand(itemCreateCmd())
	item.AddCommand(itemListCmd())
	item.AddCommand(itemShowCmd())
	item.AddCommand(itemStateCmd())
	item.AddCommand(itemBlockedCmd())
	item.AddCommand(itemDelegateCmd())
	item.AddCommand(itemCompleteDelegationCmd())
	item.AddCommand(itemReviewCmd())
	item.AddCommand(itemVerdictCmd())
	return item
}

func itemCreateCmd() *cobra.Command {
	var opts engine.WorkItemCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create work item",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.CreateWorkItem(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().StringVar(&opts.SprintID, "sprint", "", "sprint id")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.AssigneeAgentID, "assignee", "", "assignee agent id")
	cmd.Flags().StringArrayVar(&opts.AcceptanceCriteria, "criterion", []string{}, "acceptance criterion (repeatable)")
	cmd.Flags().StringArrayVar(&opts.ExternalRefs, "ref", []string{}, "external reference URL (repeatable)")
	_ = cmd.MarkFlagRequired("sprint")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func itemListCmd() *cobra.Command {
	var f repo.WorkItemFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List work items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListWorkItems(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "State", "Assignee", "Sprint"})
				for _, w := range items {
					assignee := ""
					if w.AssigneeAgentID != nil {
						assignee = *w.AssigneeAgentID
					}
					tw.AppendRow(table.Row{w.ID, w.Title, w.State, assignee, w.SprintID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.SprintID, "sprint", "", "sprint filter")
	cmd.Flags().StringVar(&f.State, "state", "", "state filter")
	cmd.Flags().StringVar(&f.Assignee, "assignee", "", "assignee filter")
	return cmd
}

func itemShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <item-id>",
		Short: "Show a work item with delegation and review history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.GetWorkItem(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	return cmd
}

func itemStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state <item-id> <state>",
		Short: "Transition work item state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.UpdateItemState(ctx, args[0], args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	return cmd
}

func itemBlockedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blocked <item-id>",
		Short: "Report work item blocked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.ReportBlocked(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	return cmd
}

func itemDelegateCmd() *cobra.Command {
	var toAgent, sessionKey string
	var isolated bool
	cmd := &cobra.Command{
		Use:   "delegate <item-id>",
		Short: "Delegate work item to an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.Delegate(ctx, engine.DelegateOptions{
					WorkItemID:  args[0],
					FromAgentID: viper.GetString("actor-id"),
					ToAgentID:   toAgent,
					SessionKey:  sessionKey,
					Isolated:    isolated,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&toAgent, "to", "", "target agent id")
	cmd.Flags().StringVar(&sessionKey, "session", "", "session key")
	cmd.Flags().BoolVar(&isolated, "isolated", false, "run in an isolated worktree")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func itemCompleteDelegationCmd() *cobra.Command {
	var sessionKey, status, outcome string
	cmd := &cobra.Command{
		Use:   "complete-delegation <item-id>",
		Short: "Close the active delegation for an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.CompleteDelegation(ctx, args[0], sessionKey, status, outcome)
			})
		},
	}
	cmd.Flags().StringVar(&sessionKey, "session", "", "session key")
	cmd.Flags().StringVar(&status, "status", "completed", "completed or failed")
	cmd.Flags().StringVar(&outcome, "outcome", "", "outcome text")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func itemReviewCmd() *cobra.Command {
	var reviewer string
	cmd := &cobra.Command{
		Use:   "review <item-id>",
		Short: "Request review of a work item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rv, err := e.RequestReview(ctx, args[0], reviewer, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(rv)
			})
		},
	}
	cmd.Flags().StringVar(&reviewer, "reviewer", "", "reviewer agent id")
	_ = cmd.MarkFlagRequired("reviewer")
	return cmd
}

func itemVerdictCmd() *cobra.Command {
	var reviewer, verdict, feedback string
	var concernSpecs []string
	cmd := &cobra.Command{
		Use:   "verdict <item-id>",
		Short: "Record review verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			concerns, err := parseConcerns(concernSpecs)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rv, err := e.RecordVerdict(ctx, engine.VerdictOptions{
					WorkItemID:      args[0],
					ReviewerAgentID: reviewer,
					Verdict:         verdict,
					Feedback:        feedback,
					Concerns:        concerns,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(rv)
			})
		},
	}
	cmd.Flags().StringVar(&reviewer, "reviewer", "", "reviewer agent id")
	cmd.Flags().StringVar(&verdict, "verdict", "", "approved or changes_requested")
	cmd.Flags().StringVar(&feedback, "feedback", "", "review feedback")
	cmd.Flags().StringArrayVar(&concernSpecs, "concern", []string{}, "concern as file:severity:description (repeatable)")
	_ = cmd.MarkFlagRequired("reviewer")
	_ = cmd.MarkFlagRequired("verdict")
	return cmd
}

func parseConcerns(specs []string) ([]domain.ReviewConcern, error) {
	concerns := make([]domain.ReviewConcern, 0, len(specs))
	for _, spec := range specs {
		parts := strings.SplitN(spec, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid concern %q, want file:severity:description", spec)
		}
		concerns = append(concerns, domain.ReviewConcern{File: parts[0], Severity: parts[1], Description: parts[2]})
	}
	return concerns, nil
}

func escalationCmd() *cobra.Command {
	esc := &cobra.Command{Use: "escalation", Short: "Manage escalations"}
	esc.AddCommand(escalationListCmd())
	esc.AddCommand(escalationResolveCmd())
	return esc
}

func escalationListCmd() *cobra.Command {
	var teamID, sprintID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List open escalations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				open, err := e.ListOpenEscalations(ctx, teamID, sprintID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(open)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Reason", "Item", "Created"})
				for _, esc := range open {
					item := ""
					if esc.WorkItemID != nil {
						item = *esc.WorkItemID
					}
					tw.AppendRow(table.Row{esc.ID, esc.Reason, item, esc.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&teamID, "team", "", "team filter")
	cmd.Flags().StringVar(&sprintID, "sprint", "", "sprint filter")
	return cmd
}

func escalationResolveCmd() *cobra.Command {
	var resolution string
	cmd := &cobra.Command{
		Use:   "resolve <escalation-id>",
		Short: "Resolve an escalation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				esc, err := e.ResolveEscalation(ctx, args[0], resolution, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(esc)
			})
		},
	}
	cmd.Flags().StringVar(&resolution, "resolution", "", "resolution text")
	_ = cmd.MarkFlagRequired("resolution")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Inspect the event log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var teamID, evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, teamID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&teamID, "team", "", "team filter")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func a2aCmd() *cobra.Command {
	a2aRoot := &cobra.Command{Use: "a2a", Short: "Agent-to-agent protocol tools"}
	a2aRoot.AddCommand(a2aValidateCmd())
	return a2aRoot
}

func a2aValidateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate an a2a message from a file or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if file == "" || file == "-" {
				data, err = io.ReadAll(os.Stdin)
			} else {
				data, err = os.ReadFile(file)
			}
			if err != nil {
				return err
			}
			var msg any
			if err := json.Unmarshal(data, &msg); err != nil {
				return fmt.Errorf("invalid json: %w", err)
			}
			result := a2a.Validate(msg)
			if err := printJSON(result); err != nil {
				return err
			}
			if !result.Valid {
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "-", "message file (- for stdin)")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server and escalation monitor",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			e := engine.New(conn, cfg)
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath})
			if err != nil {
				return err
			}
			if cfg.MonitorEnabled() {
				svc := monitor.New(e)
				svc.Start(cmd.Context())
				defer svc.Stop()
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Crewline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to config)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, cfg))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
