package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hibari-ai/officebot/internal/app"
	"github.com/hibari-ai/officebot/internal/config"
)

// turnHandler lets tests drive the chat loop without a full runtime.
type turnHandler interface {
	HandleTurn(ctx context.Context, userID, text string) (string, error)
}

func newChatCommand(logger *slog.Logger) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the bot from the terminal",
		Long:  "Sends one message when given as an argument, otherwise starts an interactive session.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			runtime, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer runtime.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if len(args) > 0 {
				text := strings.TrimSpace(strings.Join(args, " "))
				return runChatTurn(ctx, cmd, runtime.Engine(), userID, text)
			}
			return runChatLoop(ctx, cmd, runtime.Engine(), userID, cmd.InOrStdin())
		},
	}
	cmd.Flags().StringVar(&userID, "user", "console", "chat user id to speak as")
	return cmd
}

func runChatTurn(ctx context.Context, cmd *cobra.Command, handler turnHandler, userID, text string) error {
	if text == "" {
		return nil
	}
	reply, err := handler.HandleTurn(ctx, userID, text)
	if err != nil {
		return err
	}
	if strings.TrimSpace(reply) == "" {
		cmd.Println("(no reply)")
		return nil
	}
	cmd.Println(reply)
	return nil
}

func runChatLoop(ctx context.Context, cmd *cobra.Command, handler turnHandler, userID string, input io.Reader) error {
	scanner := bufio.NewScanner(input)
	fmt.Fprint(cmd.OutOrStdout(), "> ")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "exit" || text == "quit" {
			return nil
		}
		if err := runChatTurn(ctx, cmd, handler, userID, text); err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), "> ")
	}
	return scanner.Err()
}
