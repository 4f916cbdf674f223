package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"chat-gateway/internal/domain"
	"chat-gateway/internal/usecase"
)

func newChatCmd(c *cli) *cobra.Command {
	var (
		user        string
		sessionID   string
		pk          string
		contextJSON string
		turnSpecs   []string
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "chat [prompt...]",
		Short: "Run one chat cycle as a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := usecase.ChatInput{
				UserID:       user,
				SessionID:    sessionID,
				PartitionKey: pk,
				Prompt:       strings.Join(args, " "),
			}
			switch {
			case contextJSON != "" && len(turnSpecs) > 0:
				return errors.New("--context and --turn cannot be combined")
			case contextJSON != "":
				in.Context = json.RawMessage(contextJSON)
			case len(turnSpecs) > 0:
				raw, err := encodeTurnFlags(turnSpecs)
				if err != nil {
					return err
				}
				in.Context = raw
			}

			out, err := c.app.Chat.Chat(cmd.Context(), in)
			if err != nil {
				return err
			}

			if asJSON {
				return writeSession(cmd.OutOrStdout(), out.Session, "json")
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), out.Reply)
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "session: %s (%s), turns: %d, compacted: %v\n",
				out.Session.SessionID, out.Session.PartitionKey, len(out.Session.Turns), out.Compacted)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "caller identity (email)")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to continue")
	cmd.Flags().StringVar(&pk, "pk", "", "partition key for a new session (YYYYMMDD)")
	cmd.Flags().StringVar(&contextJSON, "context", "", "extra turns as JSON")
	cmd.Flags().StringArrayVar(&turnSpecs, "turn", nil, "extra turn as role:content (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the stored session as JSON")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

// encodeTurnFlags turns role:content flag values into the request's context
// field.
func encodeTurnFlags(specs []string) (json.RawMessage, error) {
	turns := make([]domain.Turn, 0, len(specs))
	for _, spec := range specs {
		roleStr, content, ok := strings.Cut(spec, ":")
		if !ok {
			return nil, fmt.Errorf("turn %q: want role:content", spec)
		}
		role, err := domain.ParseRole(strings.TrimSpace(roleStr))
		if err != nil {
			return nil, fmt.Errorf("turn %q: %w", spec, err)
		}
		turns = append(turns, domain.Turn{Role: role, Content: content})
	}
	return usecase.EncodeContext(turns)
}
