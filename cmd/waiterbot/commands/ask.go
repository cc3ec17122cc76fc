package commands

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/54b3r/waiterbot-go/internal/chat"
	"github.com/54b3r/waiterbot-go/internal/config"
	"github.com/54b3r/waiterbot-go/internal/logging"
	"github.com/54b3r/waiterbot-go/internal/store"
	"github.com/54b3r/waiterbot-go/internal/tracing"
)

// NewAskCmd constructs the `waiterbot ask` command, which runs one guest
// message through the same path as a chat event and prints the reply.
func NewAskCmd() *cobra.Command {
	var conversation string
	var showPassages bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the waiter a question about the menu",
		Long: `Send one guest message to WaiterBot and print the reply.

The message is stored in a conversation like a chat event would be, so
repeated calls with the same --conversation keep their history. Without
--conversation a new one is started.

Examples:
  waiterbot ask "what vegetarian dishes do you have?"
  waiterbot ask --conversation table-4 "and how much is the risotto?"
  waiterbot ask --show-passages "is the tiramisu homemade?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			rt, err := config.FromEnv()
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			flush, _ := tracing.Install(tracing.ConfigFromEnv())
			defer flush()

			deps, err := buildDeps(ctx, rt, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer deps.Close()

			responder, _, _, err := buildResponder(ctx, deps, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			if conversation == "" {
				conversation = "cli-" + uuid.NewString()
			}
			res, err := responder.Handle(ctx, chat.Message{
				ConversationID: conversation,
				Author:         store.SourceUser,
				Content:        strings.Join(args, " "),
			})
			if err != nil {
				return err //nolint:wrapcheck // CLI entry point, error goes directly to cobra
			}

			out := cmd.OutOrStdout()
			if showPassages {
				for i, p := range res.Passages {
					fmt.Fprintf(cmd.ErrOrStderr(), "[%d] %.3f %s: %s\n", i+1, p.Score, p.ID, p.Text)
				}
			}
			fmt.Fprintln(out, res.Reply)
			fmt.Fprintf(cmd.ErrOrStderr(), "conversation: %s\n", conversation)
			return nil
		},
	}

	cmd.Flags().StringVarP(&conversation, "conversation", "c", "", "Conversation id to continue (default: a new one)")
	cmd.Flags().BoolVar(&showPassages, "show-passages", false, "Print the retrieved menu passages to stderr")

	return cmd
}
