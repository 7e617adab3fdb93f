package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fieldline/internal/app"
	"fieldline/internal/dates"
	"fieldline/internal/domain"
)

func agentCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "agent", Short: "Manage field agents"}
	cmd.AddCommand(agentCreateCmd())
	cmd.AddCommand(agentListCmd())
	cmd.AddCommand(agentShowCmd())
	return cmd
}

func agentCreateCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register an agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, s *app.Service) error {
				a, err := s.CreateAgent(ctx, id, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "agent id (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}

func agentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, s *app.Service) error {
				agents, err := s.ListAgents(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(agents)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Zones"})
				for _, a := range agents {
					ids := make([]string, 0, len(a.Zones))
					for _, z := range a.Zones {
						ids = append(ids, z.ID)
					}
					tw.AppendRow(table.Row{a.ID, a.Name, strings.Join(ids, ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func agentShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <agent-id>",
		Short: "Show an agent and its zones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, s *app.Service) error {
				a, err := s.GetAgent(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
}

func zoneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zone",
		Short: "Manage reference zones",
		Long:  "A zone is a center and a radius in meters. Check-ins are measured against the zone they name, or the agent's only zone when they name none.",
	}
	cmd.AddCommand(zoneSetCmd())
	cmd.AddCommand(zoneRemoveCmd())
	return cmd
}

func zoneSetCmd() *cobra.Command {
	var agentID, from, to string
	var z domain.Zone
	cmd := &cobra.Command{
		Use:     "add",
		Aliases: []string{"set"},
		Short:   "Add or replace a zone",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlag("agent", agentID); err != nil {
				return err
			}
			var err error
			if z.ValidFrom, err = optionalInstant(from); err != nil {
				return err
			}
			if z.ValidTo, err = optionalInstant(to); err != nil {
				return err
			}
			return withService(cmd.Context(), func(ctx context.Context, s *app.Service) error {
				a, err := s.SetZone(ctx, agentID, z)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent id")
	cmd.Flags().StringVar(&z.ID, "id", "", "zone id")
	cmd.Flags().StringVar(&z.Label, "label", "", "zone label")
	cmd.Flags().Float64Var(&z.Center.Lat, "lat", 0, "center latitude")
	cmd.Flags().Float64Var(&z.Center.Lon, "lon", 0, "center longitude")
	cmd.Flags().Float64Var(&z.RadiusMeters, "radius", 0, "radius in meters")
	cmd.Flags().StringVar(&from, "valid-from", "", "first instant the zone applies (RFC3339)")
	cmd.Flags().StringVar(&to, "valid-to", "", "last instant the zone applies (RFC3339)")
	return cmd
}

func zoneRemoveCmd() *cobra.Command {
	var agentID, zoneID string
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a zone",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlag("agent", agentID); err != nil {
				return err
			}
			if err := requireFlag("id", zoneID); err != nil {
				return err
			}
			return withService(cmd.Context(), func(ctx context.Context, s *app.Service) error {
				return s.RemoveZone(ctx, agentID, zoneID)
			})
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent id")
	cmd.Flags().StringVar(&zoneID, "id", "", "zone id")
	return cmd
}

func missionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mission",
		Short: "Start and end missions",
		Long:  "A mission is an agent's work session: active until ended. An agent has at most one active mission.",
	}
	cmd.AddCommand(missionStartCmd())
	cmd.AddCommand(missionEndCmd())
	cmd.AddCommand(missionListCmd())
	cmd.AddCommand(missionSweepCmd())
	return cmd
}

func missionStartCmd() *cobra.Command {
	var agentID string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Open a mission for an agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlag("agent", agentID); err != nil {
				return err
			}
			return withService(cmd.Context(), func(ctx context.Context, s *app.Service) error {
				m, err := s.StartMission(ctx, agentID)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent id")
	return cmd
}

func missionEndCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "end <mission-id>",
		Short: "End a mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, s *app.Service) error {
				m, err := s.EndMission(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
}

func missionListCmd() *cobra.Command {
	var q app.MissionQuery
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List missions",
		RunE: func(cmd *cobra.Command, args []string) error {
			q.Status = domain.MissionStatus(status)
			return withService(cmd.Context(), func(ctx context.Context, s *app.Service) error {
				missions, err := s.ListMissions(ctx, q)
				if err != nil {
					return err
				}
				return printMissions(missions)
			})
		},
	}
	cmd.Flags().StringVar(&q.AgentID, "agent", "", "agent id filter")
	cmd.Flags().StringVar(&status, "status", "", "active, ended or expired")
	cmd.Flags().StringVar(&q.From, "from", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&q.To, "to", "", "last day (YYYY-MM-DD)")
	return cmd
}

func missionSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "End missions older than mission.max_duration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, s *app.Service) error {
				closed, err := s.SweepMissions(ctx)
				if err != nil {
					return err
				}
				return printMissions(closed)
			})
		},
	}
}

func printMissions(missions []domain.Mission) error {
	if viper.GetBool("json") {
		return printJSON(missions)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Agent", "Status", "Start", "End"})
	for _, m := range missions {
		end := ""
		if m.DateEnd != nil {
			end = m.DateEnd.Format(time.RFC3339)
		}
		tw.AppendRow(table.Row{m.ID, m.AgentID, m.Status, m.DateStart.Format(time.RFC3339), end})
	}
	tw.Render()
	return nil
}

func checkinCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkin",
		Short: "Submit and audit check-ins",
		Long:  "Every submission is stored. Accepted check-ins count toward presence; rejected ones keep their reason for audit.",
	}
	cmd.AddCommand(checkinSubmitCmd())
	cmd.AddCommand(checkinListCmd())
	cmd.AddCommand(checkinRevalidateCmd())
	return cmd
}

func checkinSubmitCmd() *cobra.Command {
	var draft domain.CheckinDraft
	var at string
	var accuracy float64
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a GPS check-in for a mission",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlag("mission", draft.MissionID); err != nil {
				return err
			}
			ts, err := optionalInstant(at)
			if err != nil {
				return err
			}
			if ts != nil {
				draft.Timestamp = *ts
			}
			if cmd.Flags().Changed("accuracy") {
				draft.AccuracyMeters = &accuracy
			}
			return withService(cmd.Context(), func(ctx context.Context, s *app.Service) error {
				c, err := s.SubmitCheckin(ctx, draft)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&draft.MissionID, "mission", "", "mission id")
	cmd.Flags().Float64Var(&draft.Position.Lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&draft.Position.Lon, "lon", 0, "longitude")
	cmd.Flags().Float64Var(&accuracy, "accuracy", 0, "reported accuracy in meters")
	cmd.Flags().StringVar(&at, "at", "", "instant of the fix (RFC3339, default now)")
	cmd.Flags().StringVar(&draft.ZoneID, "zone", "", "zone id when the agent has several")
	cmd.Flags().StringVar(&draft.Note, "note", "", "free text note")
	cmd.Flags().StringVar(&draft.PhotoRef, "photo", "", "photo reference")
	return cmd
}

func checkinListCmd() *cobra.Command {
	var q app.CheckinQuery
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List check-ins",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, s *app.Service) error {
				items, err := s.ListCheckins(ctx, q)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Agent", "Mission", "Time", "Zone", "Distance (m)", "Verdict"})
				for _, c := range items {
					distance := ""
					if c.DistanceMeters != nil {
						distance = fmt.Sprintf("%.1f", *c.DistanceMeters)
					}
					verdict := "accepted"
					if !c.Accepted() {
						verdict = string(c.Reason)
					}
					tw.AppendRow(table.Row{c.ID, c.AgentID, c.MissionID, c.Timestamp.Format(time.RFC3339), c.ZoneID, distance, verdict})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&q.AgentID, "agent", "", "agent id filter")
	cmd.Flags().StringVar(&q.MissionID, "mission", "", "mission id filter")
	cmd.Flags().StringVar(&q.From, "from", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&q.To, "to", "", "last day (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&q.RejectedOnly, "rejected", false, "only rejected check-ins")
	return cmd
}

func checkinRevalidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revalidate <checkin-id>",
		Short: "Recompute a stored check-in's verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, s *app.Service) error {
				c, err := s.RevalidateCheckin(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

// optionalInstant is dates.ParseInstant with empty input meaning unset.
func optionalInstant(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := dates.ParseInstant(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
