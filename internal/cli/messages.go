package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/helmcode/crew-bus/internal/crew"
	"github.com/helmcode/crew-bus/internal/models"
	"github.com/helmcode/crew-bus/internal/protocol"
)

var sendCmd = &cobra.Command{
	Use:   "send <from> <to>",
	Short: "Route a message between two agents",
	Args:  cobra.ExactArgs(2),
	RunE:  runSend,
}

var inboxCmd = &cobra.Command{
	Use:   "inbox <agent>",
	Short: "Show an agent's inbox, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runInbox,
}

var readCmd = &cobra.Command{
	Use:   "read <message-id>",
	Short: "Mark a message read",
	Args:  cobra.ExactArgs(1),
	RunE:  runRead,
}

var routeCmd = &cobra.Command{
	Use:   "route <from> <to>",
	Short: "Explain whether one agent may message another",
	Args:  cobra.ExactArgs(2),
	RunE:  runRoute,
}

func init() {
	f := sendCmd.Flags()
	f.String("type", string(models.MessageTypeReport), "message type")
	f.String("subject", "", "message subject")
	f.String("body", "", "message body")
	f.String("priority", string(models.PriorityNormal), "priority (low, normal, high, critical)")
	f.Bool("nats", false, "send through a running crewbusd over NATS (agent ids only)")
	_ = sendCmd.MarkFlagRequired("subject")

	inboxCmd.Flags().String("status", "", "filter by status (queued, delivered, read, archived)")

	rootCmd.AddCommand(sendCmd, inboxCmd, readCmd, routeCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	typ, _ := f.GetString("type")
	subject, _ := f.GetString("subject")
	body, _ := f.GetString("body")
	priority, _ := f.GetString("priority")
	if remote, _ := f.GetBool("nats"); remote {
		return sendRemote(cmd.OutOrStdout(), protocol.SendRequest{
			FromID: args[0], ToID: args[1], MessageType: typ,
			Subject: subject, Body: body, Priority: priority,
		})
	}

	return withService(cmd, func(ctx context.Context, svc *crew.Service) error {
		from, err := resolveAgent(ctx, svc, args[0])
		if err != nil {
			return err
		}
		to, err := resolveAgent(ctx, svc, args[1])
		if err != nil {
			return err
		}
		res, err := svc.SendMessage(ctx, crew.SendRequest{
			FromID:   from.ID,
			ToID:     to.ID,
			Type:     models.MessageType(typ),
			Subject:  subject,
			Body:     body,
			Priority: models.Priority(priority),
		})
		var perr *crew.PermissionError
		if errors.As(err, &perr) {
			failColor.Fprintf(cmd.OutOrStdout(), "BLOCKED %s -> %s: %s\n", from.Name, to.Name, perr.Reason)
			return err
		}
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}
		okColor.Fprintf(cmd.OutOrStdout(), "Sent %s -> %s: %s\n", res.From, res.To, res.MessageID)
		if res.RequireApproval {
			warnColor.Fprintln(cmd.OutOrStdout(), "  requires approval")
		}
		return nil
	})
}

func runInbox(cmd *cobra.Command, args []string) error {
	status, _ := cmd.Flags().GetString("status")
	return withService(cmd, func(ctx context.Context, svc *crew.Service) error {
		a, err := resolveAgent(ctx, svc, args[0])
		if err != nil {
			return err
		}
		msgs, err := svc.ReadInbox(ctx, a.ID, models.MessageStatus(status))
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), msgs)
		}
		if len(msgs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No messages.")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		headColor.Fprintln(tw, "FROM\tTYPE\tPRIORITY\tSTATUS\tSUBJECT\tID")
		for _, m := range msgs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				m.FromName, m.MessageType, m.Priority, m.Status, m.Subject, m.ID)
		}
		return tw.Flush()
	})
}

func runRead(cmd *cobra.Command, args []string) error {
	return withService(cmd, func(ctx context.Context, svc *crew.Service) error {
		changed, err := svc.MarkRead(ctx, args[0])
		if err != nil {
			return err
		}
		if changed {
			okColor.Fprintf(cmd.OutOrStdout(), "Marked %s read\n", args[0])
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s unchanged\n", args[0])
		}
		return nil
	})
}

func runRoute(cmd *cobra.Command, args []string) error {
	return withService(cmd, func(ctx context.Context, svc *crew.Service) error {
		from, err := resolveAgent(ctx, svc, args[0])
		if err != nil {
			return err
		}
		to, err := resolveAgent(ctx, svc, args[1])
		if err != nil {
			return err
		}
		d, err := svc.CheckRoute(ctx, from.ID, to.ID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), d)
		}
		w := cmd.OutOrStdout()
		if d.Allowed {
			okColor.Fprint(w, "ALLOWED")
		} else {
			failColor.Fprint(w, "BLOCKED")
		}
		fmt.Fprintf(w, " %s -> %s [%s] %s\n", from.Name, to.Name, d.Step, d.Reason)
		return nil
	})
}
