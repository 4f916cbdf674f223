package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"chat-gateway/internal/domain"
)

type turnDoc struct {
	Role    string `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

type sessionDoc struct {
	SessionID    string    `json:"sessionId" yaml:"sessionId"`
	PartitionKey string    `json:"pk" yaml:"pk"`
	Promo        string    `json:"promo" yaml:"promo"`
	Context      []turnDoc `json:"context" yaml:"context"`
}

func toSessionDoc(s domain.Session) sessionDoc {
	doc := sessionDoc{
		SessionID:    s.SessionID,
		PartitionKey: s.PartitionKey,
		Promo:        s.PendingPrompt,
		Context:      make([]turnDoc, 0, len(s.Turns)),
	}
	for _, t := range s.Turns {
		doc.Context = append(doc.Context, turnDoc{Role: string(t.Role), Content: t.Content})
	}
	return doc
}

func writeSession(w io.Writer, s domain.Session, format string) error {
	doc := toSessionDoc(s)
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q (want json or yaml)", format)
	}
}

func newSessionCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect stored sessions",
	}

	cmd.AddCommand(
		newSessionShowCmd(c),
		newSessionListCmd(c),
	)

	return cmd
}

func newSessionShowCmd(c *cli) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, found, err := c.app.Sessions.FindSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("session %q not found", args[0])
			}
			return writeSession(cmd.OutOrStdout(), s, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format: json or yaml")
	return cmd
}

func newSessionListCmd(c *cli) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list <pk>",
		Short: "List sessions in a date bucket (YYYYMMDD)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := c.app.Sessions.ListSessions(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			for _, s := range sessions {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d turns\n", s.SessionID, len(s.Turns))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum sessions to print")
	return cmd
}
