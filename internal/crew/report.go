package crew

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/helmcode/crew-bus/internal/models"
)

// ReportItem is one message folded into a report.
type ReportItem struct {
	Subject   string          `json:"subject"`
	Body      string          `json:"body"`
	Priority  models.Priority `json:"priority"`
	Type      string          `json:"message_type"`
	CreatedAt time.Time       `json:"created_at"`
}

// AgentReport groups the report items of one subordinate.
type AgentReport struct {
	Name        string       `json:"name"`
	ReportCount int          `json:"report_count"`
	Reports     []ReportItem `json:"reports"`
}

// Report summarizes what a director's subordinates sent during a period.
type Report struct {
	Director      string        `json:"director"`
	PeriodHours   int           `json:"period_hours"`
	Cutoff        time.Time     `json:"cutoff"`
	TotalMessages int           `json:"total_messages"`
	Agents        []AgentReport `json:"agents"`
	Summary       string        `json:"summary"`
}

// Subordinates returns every live agent below id in the hierarchy,
// breadth first.
func (s *Service) Subordinates(ctx context.Context, id string) ([]models.Agent, error) {
	var all []models.Agent
	if err := s.read(ctx).Find(&all).Error; err != nil {
		return nil, fmt.Errorf("loading agents: %w", err)
	}
	children := make(map[string][]models.Agent)
	for _, a := range all {
		if a.ParentAgentID != nil {
			children[*a.ParentAgentID] = append(children[*a.ParentAgentID], a)
		}
	}

	var out []models.Agent
	visited := map[string]bool{id: true}
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		kids := children[cur]
		sort.Slice(kids, func(i, j int) bool { return kids[i].Name < kids[j].Name })
		for _, c := range kids {
			if visited[c.ID] || c.Status == models.AgentStatusTerminated {
				continue
			}
			visited[c.ID] = true
			out = append(out, c)
			queue = append(queue, c.ID)
		}
	}
	return out, nil
}

// CompileReport gathers the reports, alerts and escalations sent by the
// director's subordinates over the last hours.
func (s *Service) CompileReport(ctx context.Context, directorID string, hours int) (*Report, error) {
	const op = "compile_report"
	if hours <= 0 {
		hours = 24
	}
	director, err := s.loadAgent(s.read(ctx), op, directorID)
	if err != nil {
		return nil, err
	}
	switch director.AgentType {
	case models.AgentTypeRightHand, models.AgentTypeManager, models.AgentTypeHuman:
	default:
		return nil, invalidf(op, "director_id", "Agent '%s' (%s) cannot compile reports", director.Name, director.AgentType)
	}

	subs, err := s.Subordinates(ctx, director.ID)
	if err != nil {
		return nil, err
	}
	cutoff := s.clock().Add(-time.Duration(hours) * time.Hour)
	rep := &Report{Director: director.Name, PeriodHours: hours, Cutoff: cutoff}

	if len(subs) > 0 {
		ids := make([]string, len(subs))
		names := make(map[string]string, len(subs))
		for i, a := range subs {
			ids[i] = a.ID
			names[a.ID] = a.Name
		}

		var msgs []models.Message
		err := s.read(ctx).
			Where("from_agent_id IN ? AND message_type IN ? AND created_at >= ?", ids,
				[]models.MessageType{models.MessageTypeReport, models.MessageTypeAlert, models.MessageTypeEscalation}, cutoff).
			Order("created_at ASC").
			Find(&msgs).Error
		if err != nil {
			return nil, fmt.Errorf("loading report messages: %w", err)
		}

		byAgent := map[string]*AgentReport{}
		for _, m := range msgs {
			ar, ok := byAgent[m.FromAgentID]
			if !ok {
				ar = &AgentReport{Name: names[m.FromAgentID]}
				byAgent[m.FromAgentID] = ar
			}
			ar.Reports = append(ar.Reports, ReportItem{
				Subject:   m.Subject,
				Body:      m.Body,
				Priority:  m.Priority,
				Type:      string(m.MessageType),
				CreatedAt: m.CreatedAt,
			})
			ar.ReportCount++
		}
		for _, a := range subs {
			if ar, ok := byAgent[a.ID]; ok {
				rep.Agents = append(rep.Agents, *ar)
			}
		}
		rep.TotalMessages = len(msgs)
	}
	rep.Summary = summarize(rep)
	return rep, nil
}

func summarize(r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Report: %s\n", r.Director)
	fmt.Fprintf(&b, "Period: last %d hours\n", r.PeriodHours)
	fmt.Fprintf(&b, "Total messages: %d\n", r.TotalMessages)
	if len(r.Agents) == 0 {
		b.WriteString("No reports from subordinates.\n")
		return b.String()
	}
	for _, a := range r.Agents {
		fmt.Fprintf(&b, "\n%s (%d):\n", a.Name, a.ReportCount)
		for _, it := range a.Reports {
			fmt.Fprintf(&b, "  - [%s] %s\n", it.Priority, it.Subject)
		}
	}
	return b.String()
}
