package main

import (
	"context"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fieldline/internal/app"
	"fieldline/internal/dates"
	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/report"
)

func permissionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permission",
		Short: "Request and decide leave",
		Long:  "A permission covers whole calendar days. Once approved, those days count as permission days and never as absences.",
	}
	cmd.AddCommand(permissionRequestCmd())
	cmd.AddCommand(permissionDecideCmd("approve", domain.PermissionApproved))
	cmd.AddCommand(permissionDecideCmd("reject", domain.PermissionRejected))
	cmd.AddCommand(permissionListCmd())
	return cmd
}

func permissionRequestCmd() *cobra.Command {
	var req engine.PermissionRequest
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Request a permission",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlag("agent", req.AgentID); err != nil {
				return err
			}
			if req.EndDate == "" {
				req.EndDate = req.StartDate
			}
			return withService(cmd.Context(), func(ctx context.Context, s *app.Service) error {
				p, err := s.RequestPermission(ctx, req)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&req.AgentID, "agent", "", "agent id")
	cmd.Flags().StringVar(&req.StartDate, "from", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&req.EndDate, "to", "", "last day (YYYY-MM-DD, default --from)")
	cmd.Flags().StringVar(&req.Reason, "reason", "", "reason")
	return cmd
}

func permissionDecideCmd(use string, status domain.PermissionStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <permission-id>",
		Short: "Mark a pending permission " + string(status),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, s *app.Service) error {
				p, err := s.DecidePermission(ctx, args[0], status)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func permissionListCmd() *cobra.Command {
	var agentID, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List permissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, s *app.Service) error {
				items, err := s.ListPermissions(ctx, agentID, domain.PermissionStatus(status))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Agent", "From", "To", "Status", "Reason"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.AgentID, p.StartDate, p.EndDate, p.Status, p.Reason})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent id filter")
	cmd.Flags().StringVar(&status, "status", "", "pending, approved or rejected")
	return cmd
}

func activityCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "activity", Short: "Record and list activities"}
	cmd.AddCommand(activityAddCmd())
	cmd.AddCommand(activityListCmd())
	return cmd
}

func activityAddCmd() *cobra.Command {
	var req engine.ActivityRequest
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record an activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, s *app.Service) error {
				a, err := s.RecordActivity(ctx, req)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&req.AgentID, "agent", "", "agent id")
	cmd.Flags().StringVar(&req.MissionID, "mission", "", "mission id")
	cmd.Flags().StringVar(&req.Title, "title", "", "title")
	cmd.Flags().StringVar(&req.Status, "status", "", "planned, in_progress, completed, not_completed, cancelled")
	cmd.Flags().StringVar(&req.Date, "date", "", "day (YYYY-MM-DD)")
	return cmd
}

func activityListCmd() *cobra.Command {
	var agentID, from, to string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List activities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, s *app.Service) error {
				items, err := s.ListActivities(ctx, agentID, from, to)
				if err != nil {
					return err
				}
				lines := report.FormatActivities(items)
				if viper.GetBool("json") {
					return printJSON(lines)
				}
				report.RenderActivities(os.Stdout, lines)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent id filter")
	cmd.Flags().StringVar(&from, "from", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last day (YYYY-MM-DD)")
	return cmd
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Presence statistics",
		Long:  "Working days come from the configured calendar. Worked, permission and absence days split them; presence rate is worked / working.",
	}
	cmd.AddCommand(reportStatsCmd())
	cmd.AddCommand(reportTeamCmd())
	return cmd
}

func addRangeFlags(cmd *cobra.Command, in *dates.Input) {
	cmd.Flags().StringVar(&in.Date, "date", "", "single day (YYYY-MM-DD or RFC3339 instant)")
	cmd.Flags().StringVar(&in.From, "from", "", "first day of the range")
	cmd.Flags().StringVar(&in.To, "to", "", "last day of the range")
}

func reportStatsCmd() *cobra.Command {
	var agentID string
	var in dates.Input
	var raw bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Presence of one agent over a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlag("agent", agentID); err != nil {
				return err
			}
			return withService(cmd.Context(), func(ctx context.Context, s *app.Service) error {
				stats, err := s.AgentStats(ctx, agentID, in)
				if err != nil {
					return err
				}
				return printStats(raw, []domain.PresenceStats{stats})
			})
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent id")
	cmd.Flags().BoolVar(&raw, "raw", false, "with --json, print numeric figures instead of formatted ones")
	addRangeFlags(cmd, &in)
	return cmd
}

func reportTeamCmd() *cobra.Command {
	var in dates.Input
	var raw bool
	cmd := &cobra.Command{
		Use:   "team",
		Short: "Presence of every agent over a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, s *app.Service) error {
				stats, err := s.TeamReport(ctx, in)
				if err != nil {
					return err
				}
				return printStats(raw, stats)
			})
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "with --json, print numeric figures instead of formatted ones")
	addRangeFlags(cmd, &in)
	return cmd
}

func printStats(raw bool, stats []domain.PresenceStats) error {
	summaries := make([]report.Summary, 0, len(stats))
	for i := range stats {
		summaries = append(summaries, report.Format(&stats[i]))
	}
	if viper.GetBool("json") {
		if raw {
			return printJSON(stats)
		}
		return printJSON(summaries)
	}
	report.RenderSummaries(os.Stdout, summaries)
	return nil
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every mission transition, check-in verdict and permission decision, newest first.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var agentID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, s *app.Service) error {
				items, err := s.AuditLog(ctx, agentID, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Agent", "Payload"})
				for _, e := range items {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind + ":" + e.EntityID, e.AgentID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&agentID, "agent", "", "agent id filter")
	return cmd
}
