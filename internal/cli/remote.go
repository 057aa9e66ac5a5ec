package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/helmcode/crew-bus/internal/config"
	"github.com/helmcode/crew-bus/internal/events"
	natsclient "github.com/helmcode/crew-bus/internal/nats"
	"github.com/helmcode/crew-bus/internal/protocol"
)

// Remote commands talk to a running crewbusd over NATS instead of opening
// the database.

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Bus events published over NATS",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Stream bus events until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runEventsTail,
}

func init() {
	eventsTailCmd.Flags().String("types", "", "comma-separated event type patterns, e.g. agent_*,message_sent")
	eventsCmd.AddCommand(eventsTailCmd)
	rootCmd.AddCommand(eventsCmd)
}

func connectNATS(cfg config.NATSConfig) (*natsclient.Client, error) {
	ncfg := natsclient.DefaultConfig(cfg.URL, "crewctl")
	ncfg.Token = cfg.Token
	ncfg.MaxReconnects = 0
	ncfg.JetStreamEnabled = false
	return natsclient.Connect(ncfg)
}

func runEventsTail(cmd *cobra.Command, args []string) error {
	types, _ := cmd.Flags().GetString("types")
	filter := events.ParseFilter(types)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	subject, err := protocol.EventWildcard(cfg.NATS.SubjectPrefix)
	if err != nil {
		return err
	}

	nc, err := connectNATS(cfg.NATS)
	if err != nil {
		return err
	}
	defer nc.Close()

	w := cmd.OutOrStdout()
	lines := make(chan string, 64)
	err = nc.Subscribe(subject, func(_ string, data []byte) {
		if line, ok := formatEvent(filter, data); ok {
			select {
			case lines <- line:
			default:
			}
		}
	})
	if err != nil {
		return err
	}
	if err := nc.Flush(); err != nil {
		return err
	}
	headColor.Fprintf(w, "Listening on %s\n", subject)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)
	for {
		select {
		case <-quit:
			return nil
		case <-cmd.Context().Done():
			return nil
		case line := <-lines:
			fmt.Fprintln(w, line)
		}
	}
}

// formatEvent renders one event envelope as a log line. ok is false when
// the data is not an event or the filter rejects it.
func formatEvent(filter events.Filter, data []byte) (string, bool) {
	var ev protocol.Event
	if err := json.Unmarshal(data, &ev); err != nil || ev.Type == "" {
		return "", false
	}
	if !filter.Match(ev.Type) {
		return "", false
	}
	line := fmt.Sprintf("%s %-26s", ev.Timestamp.Format(time.RFC3339), ev.Type)
	if ev.AgentID != "" {
		line += " agent=" + ev.AgentID
	}
	if len(ev.Payload) > 0 && string(ev.Payload) != "null" {
		line += " " + string(ev.Payload)
	}
	return line, true
}

// sendRemote submits a send through the daemon's request/reply bridge.
// from and to must be agent ids.
func sendRemote(w io.Writer, req protocol.SendRequest) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	subject, err := protocol.RPCSubject(cfg.NATS.SubjectPrefix, protocol.MethodSend)
	if err != nil {
		return err
	}
	nc, err := connectNATS(cfg.NATS)
	if err != nil {
		return err
	}
	defer nc.Close()

	var reply protocol.Reply
	if err := nc.Request(subject, req, &reply, 10*time.Second); err != nil {
		return err
	}
	return printReply(w, reply)
}

func printReply(w io.Writer, reply protocol.Reply) error {
	if jsonOutput {
		return printJSON(w, reply)
	}
	switch {
	case reply.OK:
		okColor.Fprintf(w, "Sent %s\n", reply.MessageID)
		return nil
	case reply.Blocked:
		failColor.Fprintf(w, "BLOCKED: %s\n", reply.Error)
	default:
		failColor.Fprintf(w, "FAILED: %s\n", reply.Error)
	}
	return errors.New(reply.Error)
}
