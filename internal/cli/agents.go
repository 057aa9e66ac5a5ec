package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/helmcode/crew-bus/internal/crew"
	"github.com/helmcode/crew-bus/internal/models"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Inspect and manage agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agents in hierarchy order",
	Args:  cobra.NoArgs,
	RunE:  runAgentsList,
}

var agentsShowCmd = &cobra.Command{
	Use:   "show <agent>",
	Short: "Show an agent with its message counters",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentsShow,
}

var agentsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create or update an agent",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentsAdd,
}

var agentsReportCmd = &cobra.Command{
	Use:   "report <agent>",
	Short: "Summarize reports sent by an agent's subordinates",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentsReport,
}

// lifecycleActions maps a subcommand name to its engine operation.
var lifecycleActions = []struct {
	name  string
	short string
	apply func(*crew.Service, context.Context, string) (*models.Agent, error)
}{
	{"quarantine", "Quarantine an agent", (*crew.Service).QuarantineAgent},
	{"restore", "Restore a quarantined agent", (*crew.Service).RestoreAgent},
	{"terminate", "Terminate an agent and archive its messages", (*crew.Service).TerminateAgent},
	{"activate", "Deploy an agent", (*crew.Service).ActivateAgent},
	{"deactivate", "Undeploy an agent", (*crew.Service).DeactivateAgent},
}

func init() {
	f := agentsAddCmd.Flags()
	f.String("type", "", "agent type (human, right_hand, security, manager, worker, ...)")
	f.String("parent", "", "parent agent name")
	f.String("channel", "", "delivery channel (telegram, signal, email, console)")
	f.String("address", "", "channel address")
	f.String("description", "", "agent description")
	f.String("timezone", "", "IANA timezone")
	f.String("quiet-start", "", "quiet hours start (HH:MM)")
	f.String("quiet-end", "", "quiet hours end (HH:MM)")
	f.StringSlice("capability", nil, "capability (repeatable)")
	_ = agentsAddCmd.MarkFlagRequired("type")

	agentsReportCmd.Flags().Int("hours", 24, "reporting window in hours")

	agentsCmd.AddCommand(agentsListCmd, agentsShowCmd, agentsAddCmd, agentsReportCmd)
	for _, action := range lifecycleActions {
		agentsCmd.AddCommand(newLifecycleCmd(action.name, action.short, action.apply))
	}
	rootCmd.AddCommand(agentsCmd)
}

func newLifecycleCmd(name, short string, apply func(*crew.Service, context.Context, string) (*models.Agent, error)) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <agent>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *crew.Service) error {
				a, err := resolveAgent(ctx, svc, args[0])
				if err != nil {
					return err
				}
				updated, err := apply(svc, ctx, a.ID)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), updated)
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "%s: ", updated.Name)
				statusColor(updated.Status).Fprintf(w, "%s", updated.Status)
				fmt.Fprintf(w, " (active=%t)\n", updated.Active)
				return nil
			})
		},
	}
}

func runAgentsList(cmd *cobra.Command, args []string) error {
	return withService(cmd, func(ctx context.Context, svc *crew.Service) error {
		agents, err := svc.ListAgents(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), agents)
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		headColor.Fprintln(tw, "NAME\tTYPE\tROLE\tSTATUS\tACTIVE\tPARENT\tID")
		for _, a := range agents {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\t%s\n",
				a.Name, a.AgentType, a.Role, a.Status, a.Active, a.ParentName, a.ID)
		}
		return tw.Flush()
	})
}

func runAgentsShow(cmd *cobra.Command, args []string) error {
	return withService(cmd, func(ctx context.Context, svc *crew.Service) error {
		a, err := resolveAgent(ctx, svc, args[0])
		if err != nil {
			return err
		}
		report, err := svc.GetAgentStatus(ctx, a.ID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), report)
		}
		w := cmd.OutOrStdout()
		headColor.Fprintf(w, "%s\n", report.Name)
		fmt.Fprintf(w, "  id:       %s\n", report.ID)
		fmt.Fprintf(w, "  type:     %s (%s)\n", report.AgentType, report.Role)
		fmt.Fprint(w, "  status:   ")
		statusColor(report.Status).Fprintf(w, "%s\n", report.Status)
		fmt.Fprintf(w, "  active:   %t\n", report.Active)
		fmt.Fprintf(w, "  trust:    %d\n", report.TrustScore)
		fmt.Fprintf(w, "  burnout:  %d\n", report.BurnoutScore)
		fmt.Fprintf(w, "  inbox:    %d (%d unread)\n", report.InboxTotal, report.InboxUnread)
		fmt.Fprintf(w, "  sent:     %d\n", report.SentTotal)
		return nil
	})
}

func runAgentsAdd(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	typ, _ := f.GetString("type")
	parent, _ := f.GetString("parent")
	channel, _ := f.GetString("channel")
	address, _ := f.GetString("address")
	description, _ := f.GetString("description")
	timezone, _ := f.GetString("timezone")
	quietStart, _ := f.GetString("quiet-start")
	quietEnd, _ := f.GetString("quiet-end")
	capabilities, _ := f.GetStringSlice("capability")

	spec := crew.AgentSpec{
		Name:            args[0],
		Type:            models.AgentType(typ),
		Parent:          parent,
		Channel:         models.Channel(channel),
		ChannelAddress:  address,
		Description:     description,
		Timezone:        timezone,
		QuietHoursStart: quietStart,
		QuietHoursEnd:   quietEnd,
		Capabilities:    capabilities,
	}
	return withService(cmd, func(ctx context.Context, svc *crew.Service) error {
		a, err := svc.UpsertAgent(ctx, spec)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), a)
		}
		okColor.Fprintf(cmd.OutOrStdout(), "Saved %s (%s) %s\n", a.Name, a.AgentType, a.ID)
		return nil
	})
}

func runAgentsReport(cmd *cobra.Command, args []string) error {
	hours, _ := cmd.Flags().GetInt("hours")
	return withService(cmd, func(ctx context.Context, svc *crew.Service) error {
		a, err := resolveAgent(ctx, svc, args[0])
		if err != nil {
			return err
		}
		report, err := svc.CompileReport(ctx, a.ID, hours)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), report)
		}
		fmt.Fprintln(cmd.OutOrStdout(), report.Summary)
		return nil
	})
}
