package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"baseline/internal/app"
	"baseline/internal/config"
	"baseline/internal/db"
	"baseline/internal/domain"
	"baseline/internal/engine"
	"baseline/internal/migrate"
	"baseline/internal/repo"
	"baseline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "bl",
	Short: "Baseline CLI",
	Long: `Baseline keeps project documents under version control with an approval gate.
Core concepts:
- Workspace: your .baseline directory with only the database; project configs live in the DB.
- Artifacts: documents (charter, wbs, schedule, budget, ...) where every edit round is a new version in a chain; exactly one version per type is "current".
- Approval: current versions go draft -> submitted -> approved/rejected, or back via changes requested. A submitted version is locked against edits, and authors never approve their own work.
- Baseline: an approved version becomes the document of record; later revisions spin off new drafts without rewriting history.
- Change requests: cards that move intake -> analysis -> review -> in_progress -> implemented -> closed, with an approval gate in front of review's exit.
- Audit log: every transition is recorded; view with 'bl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
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
	viper.SetEnvPrefix("BASELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("project", "", "project id (overrides the single project in the workspace)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(artifactCmd())
	rootCmd.AddCommand(changeCmd())
	rootCmd.AddCommand(boardCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- project ---

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func projectCreateCmd() *cobra.Command {
	var id, name, desc string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
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
			cfg := config.Default(id)
			e := engine.New(conn, cfg)
			p, err := e.InitProject(cmd.Context(), id, name, desc, viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			return printJSONOrTable(p)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id")
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Repo.GetProject(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

// --- members ---

func memberCmd() *cobra.Command {
	m := &cobra.Command{Use: "member", Short: "Manage project members"}
	m.AddCommand(memberGrantCmd())
	m.AddCommand(memberListCmd())
	m.AddCommand(memberRemoveCmd())
	return m
}

func memberGrantCmd() *cobra.Command {
	var target, role string
	var approver bool
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Grant or update a member role",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, ok := domain.ValidRole(role)
			if !ok {
				return fmt.Errorf("unknown role %q (owner|editor|viewer)", role)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.GrantMember(ctx, e.Config.Project.ID, viper.GetString("actor-id"), target, r, approver)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "editor", "role (owner|editor|viewer)")
	cmd.Flags().BoolVar(&approver, "approver", false, "grant approver standing")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func memberListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListMembers(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Actor", "Role", "Approver"})
				for _, m := range items {
					tw.AppendRow(table.Row{m.ActorID, m.Role, m.IsApprover})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func memberRemoveCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a member",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RemoveMember(ctx, e.Config.Project.ID, viper.GetString("actor-id"), target)
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

// --- artifacts ---

func artifactCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "artifact",
		Short: "Manage versioned documents",
		Long:  "Artifacts are the project documents. Each create or revision adds a version to a chain; the approval gate decides which version becomes the baseline.",
	}
	a.AddCommand(artifactCreateCmd())
	a.AddCommand(artifactListCmd())
	a.AddCommand(artifactGetCmd())
	a.AddCommand(artifactEditCmd())
	a.AddCommand(artifactSubmitCmd())
	a.AddCommand(artifactApproveCmd())
	a.AddCommand(artifactRequestChangesCmd())
	a.AddCommand(artifactRejectCmd())
	a.AddCommand(artifactReviseCmd())
	a.AddCommand(artifactRestoreCmd())
	a.AddCommand(artifactSetCurrentCmd())
	a.AddCommand(artifactHistoryCmd())
	a.AddCommand(artifactDeleteCmd())
	return a
}

func artifactCreateCmd() *cobra.Command {
	var artifactType, title, content, contentFile string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an artifact version",
		RunE: func(cmd *cobra.Command, args []string) error {
			if contentFile != "" {
				data, err := os.ReadFile(contentFile)
				if err != nil {
					return err
				}
				content = string(data)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateArtifact(ctx, engine.CreateArtifactOptions{
					ProjectID: e.Config.Project.ID,
					Type:      artifactType,
					Title:     title,
					Content:   content,
					ActorID:   viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&artifactType, "type", "", "artifact type (charter|wbs|schedule|budget|risk_register|status_report|closure_report)")
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&content, "content", "", "content")
	cmd.Flags().StringVar(&contentFile, "content-file", "", "read content from file")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func artifactListCmd() *cobra.Command {
	var f repo.ArtifactFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f.ProjectID = e.Config.Project.ID
				items, err := e.Repo.ListArtifacts(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Title", "Ver", "Status", "Current", "Baseline"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.Type, a.Title, a.Version, a.ApprovalStatus, a.IsCurrent, a.IsBaseline})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Type, "type", "", "type filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().BoolVar(&f.CurrentOnly, "current", false, "only current versions")
	return cmd
}

func artifactGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one artifact version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Repo.GetArtifact(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func artifactEditCmd() *cobra.Command {
	var title, content, contentFile string
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit the current draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if contentFile != "" {
				data, err := os.ReadFile(contentFile)
				if err != nil {
					return err
				}
				content = string(data)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				patch := engine.ContentPatch{
					Title:   optionalString(title),
					Content: optionalString(content),
				}
				a, err := e.UpdateContent(ctx, args[0], viper.GetString("actor-id"), patch)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&content, "content", "", "new content")
	cmd.Flags().StringVar(&contentFile, "content-file", "", "read content from file")
	return cmd
}

func artifactSubmitCmd() *cobra.Command {
	return artifactActionCmd("submit <id>", "Submit for approval", func(ctx context.Context, e engine.Engine, id string) (domain.Artifact, error) {
		return e.Submit(ctx, id, viper.GetString("actor-id"))
	})
}

func artifactApproveCmd() *cobra.Command {
	return artifactActionCmd("approve <id>", "Approve and baseline the submitted version", func(ctx context.Context, e engine.Engine, id string) (domain.Artifact, error) {
		return e.Approve(ctx, id, viper.GetString("actor-id"))
	})
}

func artifactActionCmd(use, short string, do func(context.Context, engine.Engine, string) (domain.Artifact, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := do(ctx, e, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
}

func artifactRequestChangesCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "request-changes <id>",
		Short: "Send the submitted version back for changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.RequestChanges(ctx, args[0], viper.GetString("actor-id"), reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why changes are needed")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func artifactRejectCmd() *cobra.Command {
	var reason, confirm string
	cmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Permanently reject the submitted version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.RejectFinal(ctx, args[0], viper.GetString("actor-id"), reason, confirm)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason")
	cmd.Flags().StringVar(&confirm, "confirm", "", "confirmation phrase (see project config)")
	_ = cmd.MarkFlagRequired("reason")
	_ = cmd.MarkFlagRequired("confirm")
	return cmd
}

func artifactReviseCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "revise <id>",
		Short: "Start a new revision of a decided document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateRevision(ctx, args[0], viper.GetString("actor-id"), reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "revision reason")
	return cmd
}

func artifactRestoreCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore an old version's content as a new revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.RestoreVersion(ctx, args[0], viper.GetString("actor-id"), reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "restore reason")
	return cmd
}

func artifactSetCurrentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-current <id>",
		Short: "Point the current pointer at this version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.SetCurrent(ctx, args[0], viper.GetString("actor-id")); err != nil {
					return err
				}
				a, err := e.Repo.GetArtifact(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
}

func artifactHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Show the full version chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.VersionHistory(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Ver", "ID", "Status", "Current", "Baseline", "Revision", "Author", "Created"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.Version, a.ID, a.ApprovalStatus, a.IsCurrent, a.IsBaseline, a.RevisionType, a.AuthorID, a.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func artifactDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a draft version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.SoftDeleteArtifact(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
}

// --- change requests ---

func changeCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "change",
		Short: "Manage change requests",
		Long:  "Change requests are cards on a delivery board. They flow intake -> analysis -> review -> in_progress -> implemented -> closed, with an approver's decision gating the exit from review.",
	}
	c.AddCommand(changeCreateCmd())
	c.AddCommand(changeListCmd())
	c.AddCommand(changeGetCmd())
	c.AddCommand(changeMoveCmd())
	c.AddCommand(changeSubmitCmd())
	c.AddCommand(changeDecideCmd())
	c.AddCommand(changeDeleteCmd())
	return c
}

func changeCreateCmd() *cobra.Command {
	var title, summary, priority, artifactID, requester string
	var days int
	var cost float64
	var risk string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a change request",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateChange(ctx, engine.CreateChangeOptions{
					ProjectID:     e.Config.Project.ID,
					ArtifactID:    optionalString(artifactID),
					Title:         title,
					Summary:       summary,
					Priority:      priority,
					Impact:        domain.ImpactAnalysis{Days: days, Cost: cost, Risk: risk},
					RequesterName: requester,
					ActorID:       viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&summary, "summary", "", "summary")
	cmd.Flags().StringVar(&priority, "priority", "medium", "priority (low|medium|high|critical)")
	cmd.Flags().StringVar(&artifactID, "artifact", "", "linked artifact id")
	cmd.Flags().StringVar(&requester, "requester", "", "requester name")
	cmd.Flags().IntVar(&days, "impact-days", 0, "estimated effort in days")
	cmd.Flags().Float64Var(&cost, "impact-cost", 0, "estimated cost")
	cmd.Flags().StringVar(&risk, "impact-risk", "", "risk descriptor")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func changeListCmd() *cobra.Command {
	var f repo.ChangeFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List change requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f.ProjectID = e.Config.Project.ID
				items, err := e.Repo.ListChanges(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Lane", "Decision", "Priority"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.Title, c.DeliveryLane, c.DecisionStatus, c.Priority})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Lane, "lane", "", "lane filter")
	cmd.Flags().StringVar(&f.Decision, "decision", "", "decision filter")
	return cmd
}

func changeGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a change request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.Repo.GetChange(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

func changeMoveCmd() *cobra.Command {
	var lane string
	cmd := &cobra.Command{
		Use:   "move <id>",
		Short: "Move a card between lanes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, warnings, err := e.PatchDeliveryStatus(ctx, args[0], viper.GetString("actor-id"), lane)
				if err != nil {
					return err
				}
				for _, w := range warnings {
					fmt.Fprintln(os.Stderr, "warning:", w)
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&lane, "lane", "", "target lane")
	_ = cmd.MarkFlagRequired("lane")
	return cmd
}

func changeSubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit <id>",
		Short: "Submit a card for approval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.SubmitForApproval(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

func changeDecideCmd() *cobra.Command {
	var verdict, reason string
	cmd := &cobra.Command{
		Use:   "decide <id>",
		Short: "Record an approval decision on a submitted card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.DecideChange(ctx, args[0], viper.GetString("actor-id"), verdict, reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&verdict, "verdict", "", "approve|reject|rework")
	cmd.Flags().StringVar(&reason, "reason", "", "decision reason")
	_ = cmd.MarkFlagRequired("verdict")
	return cmd
}

func changeDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a draft card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteDraft(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
}

// --- board ---

func boardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "board",
		Short: "Show the change request board",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				board, err := e.Board(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(board)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Lane", "Cards"})
				for _, lane := range domain.Lanes {
					var titles []string
					for _, c := range board[lane] {
						titles = append(titles, c.Title)
					}
					tw.AppendRow(table.Row{lane, strings.Join(titles, ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
}

// --- log ---

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Audit log",
		Long:  "The record of every transition: versions created, approvals, rejections, lane moves.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var entityKind, entityID, action string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestAuditEvents(ctx, repo.AuditFilters{
					ProjectID:  e.Config.Project.ID,
					EntityKind: entityKind,
					EntityID:   entityID,
					Action:     action,
					Limit:      n,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind filter")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id filter")
	cmd.Flags().StringVar(&action, "action", "", "action filter")
	return cmd
}

// --- config ---

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Project configuration"}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configImportCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active project config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a YAML config into the workspace DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			projectID := cfg.Project.ID
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if projectID == "" {
					projectID = e.Config.Project.ID
				}
				if err := e.Repo.UpsertProjectConfig(ctx, projectID, cfg); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// --- api keys ---

func apikeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "API keys for the HTTP API"}
	k.AddCommand(apikeyCreateCmd())
	return k
}

func apikeyCreateCmd() *cobra.Command {
	var actor, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key",
		Long:  "Generates a key, stores only its hash, and prints the plaintext once. There is no way to recover it later.",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := make([]byte, 32)
			if _, err := rand.Read(raw); err != nil {
				return err
			}
			plaintext := "blk_" + hex.EncodeToString(raw)
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				key := domain.APIKey{
					ID:        uuid.New().String(),
					ActorID:   actor,
					Name:      name,
					KeyHash:   repo.HashAPIKey(plaintext),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "actor_id": key.ActorID, "key": plaintext})
				}
				fmt.Printf("API key for %s (shown once):\n%s\n", actor, plaintext)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor the key authenticates as")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
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
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveProjectAndConfig(cmd.Context(), viper.GetString("project"), viper.GetString("actor-id"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:      os.Getenv("BASELINE_JWT_SECRET"),
				EnableDevLogin: devLogin,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("BASELINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Using database %s\n", db.Path(workspace))
			fmt.Printf("Serving Baseline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "enable the unauthenticated dev token endpoint")
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
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveProjectAndConfig(ctx, viper.GetString("project"), viper.GetString("actor-id"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
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

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
