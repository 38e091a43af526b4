package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tariff/internal/cli"
	"github.com/Veraticus/tariff/internal/common"
	"github.com/Veraticus/tariff/internal/confidence"
	"github.com/Veraticus/tariff/internal/engine"
	"github.com/Veraticus/tariff/internal/model"
	"github.com/Veraticus/tariff/internal/service"
)

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List, inspect and resume classification runs",
	}
	cmd.AddCommand(listRunsCmd())
	cmd.AddCommand(showRunCmd())
	cmd.AddCommand(resumeRunCmd())
	return cmd
}

func parseID(arg, what string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, common.E(common.KindInvalid, "args", fmt.Errorf("invalid %s id %q", what, arg))
	}
	return id, nil
}

// parseThreshold accepts a fraction ("0.85") or a percentage ("85", "85%").
func parseThreshold(arg string) (float64, error) {
	s := strings.TrimSpace(arg)
	percent := strings.HasSuffix(s, "%")
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return 0, common.E(common.KindInvalid, "args", fmt.Errorf("invalid threshold %q", arg))
	}
	if percent || v > 1 {
		v /= 100
	}
	if err := confidence.ValidateThreshold(v); err != nil {
		return 0, common.E(common.KindInvalid, "args", err)
	}
	return v, nil
}

func listRunsCmd() *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your runs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			userID, err := a.userID()
			if err != nil {
				return err
			}
			filter := service.RunFilter{Status: model.RunStatus(status), Limit: limit}
			if status != "" && !filter.Status.Valid() {
				return fmt.Errorf("unknown run status %q", status)
			}
			runs, err := a.store.ListRuns(ctx, userID, filter)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderRuns(runs))
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only runs with this status (e.g. awaiting_clarification)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	return cmd
}

func showRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run's status history and clarification transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runID, err := parseID(args[0], "run")
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
			run, err := a.store.GetRun(ctx, runID)
			if errors.Is(err, common.ErrNotFound) {
				return common.E(common.KindNotFound, "runs.show", err)
			}
			if err != nil {
				return err
			}
			if run.UserID != userID {
				return common.E(common.KindForbidden, "runs.show", engine.ErrNotOwner)
			}
			history, err := a.store.GetRunHistory(ctx, runID)
			if err != nil {
				return err
			}
			messages, err := a.store.ListClarificationMessages(ctx, runID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.RenderTranscript(*run, history, messages))
			if run.Status == model.RunCompleted {
				if result, err := a.store.GetResultByRun(ctx, runID); err == nil {
					fmt.Fprintln(out, cli.RenderResult(*result, a.queue().FormatMoney))
				}
			}
			return nil
		},
	}
}

func resumeRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Continue a run that is waiting for an answer or hit a classifier failure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runID, err := parseID(args[0], "run")
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
			eng, err := a.engine()
			if err != nil {
				return err
			}
			state, err := eng.Resume(ctx, userID, runID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			prompter := cli.NewCLIPrompter(cmd.InOrStdin(), out)
			switch {
			case state.Status() == model.RunAwaitingClarification:
				return drive(ctx, a, eng, state, engine.OutcomeClarify, nil, prompter, out)
			case state.Pending():
				outcome, err := eng.Retry(ctx, state)
				return drive(ctx, a, eng, state, outcome, err, prompter, out)
			case state.Status() == model.RunCompleted && state.Result != nil:
				fmt.Fprintln(out, cli.RenderResult(*state.Result, a.queue().FormatMoney))
				return nil
			default:
				fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Run %d is %s; nothing to resume.", runID, state.Status())))
				return nil
			}
		},
	}
}
