package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tariff/internal/cli"
	"github.com/Veraticus/tariff/internal/common"
	"github.com/Veraticus/tariff/internal/review"
)

const reviewHelp = `Type anything to tell the assistant about the product. Commands:
  /select <hts>     choose a candidate code
  /upload <files>   attach documents (resolves every open issue)
  /note <text>      set audit notes
  /approve          approve the selected code
  /reject           close without approving
  /later            save for later and close
  /cancel           close without saving
  /help             show this help`

func reviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review <result-id>",
		Short: "Review a low-confidence classification with the assistant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			resultID, err := parseID(args[0], "result")
			if err != nil {
				return err
			}
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			userID, err := a.userID()
			if err != nil {
				return err
			}
			svc := a.reviewService()
			session, err := svc.Open(ctx, userID, resultID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.RenderSessionHeader(session))
			fmt.Fprintln(out, cli.RenderChat(session.Transcript))
			fmt.Fprintln(out, cli.SubtleStyle.Render(reviewHelp))

			return chat(ctx, svc, session, cli.NewCLIPrompter(cmd.InOrStdin(), out), out)
		},
	}
}

// chat reads reviewer lines until the session closes or input ends.
func chat(ctx context.Context, svc *review.Service, session *review.Session, p *cli.Prompter, out io.Writer) error {
	for session.Open() {
		line, err := p.ReadLine(ctx, cli.RenderConfidenceBar(session.State.Current))
		if errors.Is(err, io.EOF) || errors.Is(err, cli.ErrInputCancelled) {
			return svc.Cancel(ctx, session)
		}
		if err != nil {
			return err
		}
		if line == "" {
			continue
		}
		if err := handleLine(ctx, svc, session, line, out); err != nil {
			if common.KindOf(err) != common.KindUnknown {
				return err
			}
			fmt.Fprintln(out, cli.FormatWarning(err.Error()))
		}
	}
	return nil
}

func handleLine(ctx context.Context, svc *review.Service, session *review.Session, line string, out io.Writer) error {
	var ev review.Event
	if !strings.HasPrefix(line, "/") {
		ev = review.SubmitEvidence{Text: line}
	} else {
		command, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)
		switch command {
		case "/select":
			ev = review.SelectCandidate{HTS: rest}
		case "/upload":
			ev = review.UploadDocument{Names: strings.Fields(rest)}
		case "/note", "/notes":
			ev = review.AddNotes{Text: rest}
		case "/approve":
			record, err := svc.Approve(ctx, session)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Approved %s at %s confidence.", record.ChosenHTS, cli.FormatConfidence(session.State.Current))))
			return nil
		case "/reject":
			if err := svc.Reject(ctx, session); err != nil {
				return err
			}
			fmt.Fprintln(out, cli.FormatInfo("Rejected. The item stays in your exception queue."))
			return nil
		case "/later":
			if _, err := svc.ReviewLater(ctx, session); err != nil {
				return err
			}
			fmt.Fprintln(out, cli.FormatInfo("Saved for later. See it with: tariff later list"))
			return nil
		case "/cancel":
			return svc.Cancel(ctx, session)
		case "/help":
			fmt.Fprintln(out, reviewHelp)
			return nil
		default:
			return fmt.Errorf("unknown command %s (try /help)", command)
		}
	}

	msgs, err := svc.Submit(ctx, session, ev)
	if err != nil {
		return err
	}
	// The reviewer's own line is already on screen.
	shown := msgs[:0]
	for _, m := range msgs {
		if m.Role != review.RoleUser {
			shown = append(shown, m)
		}
	}
	if len(shown) > 0 {
		fmt.Fprintln(out, cli.RenderChat(shown))
	}
	return nil
}

func laterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "later",
		Short: "Reviews saved for later",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List reviews saved for later",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			items, err := review.NewLaterStore(a.cfg.LaterPath).List()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderLater(items))
			return nil
		},
	})
	return cmd
}
