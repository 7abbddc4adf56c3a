package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/omharigupta/datasynth/internal/analysis"
	"github.com/omharigupta/datasynth/internal/config"
	"github.com/omharigupta/datasynth/internal/domain"
	"github.com/omharigupta/datasynth/internal/kyb"
	"github.com/omharigupta/datasynth/internal/profile"
	"github.com/omharigupta/datasynth/internal/scraper"
	"github.com/omharigupta/datasynth/internal/workflow"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Run the KYB interview in the terminal",
	Long: `Start a guided KYB conversation. Paste a URL at any point to scrape it.

Commands inside the chat:
  /status   show completeness
  /record   show where the record is saved
  /quit     leave the chat`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		records, err := kyb.NewFileStore(kybDir)
		if err != nil {
			return err
		}

		analyzer := analysis.Analyzer(analysis.Unavailable{})
		if cfg, err := config.Load(); err != nil {
			slog.Warn("Configuration invalid, analysis disabled", "error", err)
		} else if a, err := analysis.New(ctx, cfg.Analysis, slog.Default()); err != nil {
			slog.Warn("Analysis oracle unavailable", "error", err)
		} else {
			analyzer = a
		}
		if closer, ok := analyzer.(analysis.Closer); ok {
			defer func() {
				if err := closer.Close(); err != nil {
					slog.Warn("Failed to close analysis client", "error", err)
				}
			}()
		}

		engine := workflow.New(records, scraper.New(scraper.Options{}), analyzer,
			workflow.WithLogger(slog.Default()))

		cyan := color.New(color.FgCyan).SprintFunc()
		rl, err := readline.NewEx(&readline.Config{
			Prompt:            cyan("you> "),
			InterruptPrompt:   "^C",
			EOFPrompt:         "exit",
			HistorySearchFold: true,
		})
		if err != nil {
			return fmt.Errorf("failed to create readline: %w", err)
		}
		defer rl.Close()

		return runChat(ctx, engine, rl, rl.Stdout())
	},
}

// lineReader is the part of readline the chat loop needs.
type lineReader interface {
	Readline() (string, error)
}

func runChat(ctx context.Context, engine *workflow.Engine, in lineReader, out io.Writer) error {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	res := engine.Process(ctx, workflow.Turn{}, &domain.Session{UserID: "cli"})
	sess := res.Session
	var history []domain.StoredMessage
	fmt.Fprintf(out, "%s %s\n\n", green("kyb>"), res.Reply)

	for {
		line, err := in.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(out, "\nGoodbye!")
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch line {
		case "/quit", "/exit":
			fmt.Fprintln(out, "Goodbye!")
			return nil
		case "/status":
			snap := profile.SnapshotOf(sess)
			fmt.Fprintf(out, "%s step %d, score %.1f, missing %s\n\n",
				yellow("status:"), sess.Step, profile.Score(snap), missingList(sess.Knowledge))
			continue
		case "/record":
			if !sess.HasBackingRecord() {
				fmt.Fprintf(out, "%s no record yet\n\n", yellow("record:"))
			} else {
				fmt.Fprintf(out, "%s %s\n\n", yellow("record:"), sess.KYBFile)
			}
			continue
		}

		res = engine.Process(ctx, workflow.Turn{Text: line, History: history}, sess)
		sess = res.Session
		history = append(history,
			domain.StoredMessage{Role: domain.RoleUser, Content: line},
			domain.StoredMessage{Role: domain.RoleAssistant, Content: res.Reply})
		fmt.Fprintf(out, "%s %s\n\n", green("kyb>"), res.Reply)

		if ctx.Err() != nil {
			return nil
		}
	}
}

func missingList(k domain.KnowledgeRecord) string {
	missing := profile.Missing(k)
	if len(missing) == 0 {
		return "nothing"
	}
	return strings.Join(missing, ", ")
}
