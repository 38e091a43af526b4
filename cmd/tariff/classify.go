package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tariff/internal/cli"
	"github.com/Veraticus/tariff/internal/common"
	"github.com/Veraticus/tariff/internal/confidence"
	"github.com/Veraticus/tariff/internal/engine"
	"github.com/Veraticus/tariff/internal/model"
)

func classifyCmd() *cobra.Command {
	var (
		input     model.ProductInput
		materials []string
		cost      float64
		file      string
	)

	cmd := &cobra.Command{
		Use:   "classify [description]",
		Short: "Classify a product into an HTS code",
		Long: `Classify a product. When the classifier needs more detail it asks a
follow-up question; answer it and the product is reclassified with everything
you have said so far. Use --file to classify a CSV of products in bulk.`,
		Example: `  tariff classify "Portable Bluetooth speaker" --origin CN --cost 49.99
  tariff classify "Pullover hoodie" --material cotton=80 --material polyester=20
  tariff classify --file products.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if file != "" {
				return runBulk(ctx, a, file, cmd.OutOrStdout())
			}

			input.Description = strings.TrimSpace(strings.Join(args, " "))
			for _, m := range materials {
				parsed, err := parseMaterial(m)
				if err != nil {
					return err
				}
				input.Materials = append(input.Materials, parsed)
			}
			if cmd.Flags().Changed("cost") {
				input.UnitCost = &cost
			}
			return runSingle(ctx, a, input, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&input.Name, "name", "", "product name")
	cmd.Flags().StringVar(&input.CountryOfOrigin, "origin", "", "country of origin (ISO code)")
	cmd.Flags().StringVar(&input.Vendor, "vendor", "", "vendor or supplier")
	cmd.Flags().StringVar(&input.SKU, "sku", "", "stock keeping unit")
	cmd.Flags().Float64Var(&cost, "cost", 0, "unit cost in USD")
	cmd.Flags().StringArrayVar(&materials, "material", nil, "material composition as name=percentage (repeatable)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "CSV file of products to classify in bulk")

	return cmd
}

func runSingle(ctx context.Context, a *app, input model.ProductInput, in io.Reader, out io.Writer) error {
	userID, err := a.userID()
	if err != nil {
		return err
	}
	eng, err := a.engine()
	if err != nil {
		return err
	}

	prompter := cli.NewCLIPrompter(in, out)
	state, outcome, err := eng.Start(ctx, userID, model.RunTypeSingle, input)
	if err != nil && state == nil {
		return err
	}
	return drive(ctx, a, eng, state, outcome, err, prompter, out)
}

// drive continues a run interactively until it resolves, escalates, or the
// user stops retrying a silent classifier failure.
func drive(ctx context.Context, a *app, eng *engine.Engine, state *engine.RunState, outcome engine.Outcome, err error, p *cli.Prompter, out io.Writer) error {
	for {
		if err == nil {
			outcome, err = eng.Converse(ctx, state, outcome, p)
		}
		if err == nil {
			break
		}
		if !common.IsKind(err, common.KindClassifierUnavailable) || !state.Pending() {
			return err
		}

		fmt.Fprintln(out, cli.FormatWarning("The classifier did not answer. Nothing was lost."))
		retry, confirmErr := p.Confirm(ctx, "Retry now?", true)
		if confirmErr != nil || !retry {
			fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Resume later with: tariff runs resume %d", state.Run.ID)))
			return nil
		}
		outcome, err = eng.Retry(ctx, state)
	}

	switch outcome {
	case engine.OutcomeResolved:
		q := a.queue()
		fmt.Fprintln(out, cli.RenderResult(*state.Result, q.FormatMoney))
		threshold, err := a.store.GetUserThreshold(ctx, state.Run.UserID)
		if err != nil {
			return err
		}
		if confidence.IsException(state.Result.Confidence, threshold) {
			fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf(
				"Below your %s threshold, so this is in your exception queue. Review it with: tariff review %d",
				confidence.Percent(threshold), state.Result.ID)))
		} else {
			fmt.Fprintln(out, cli.FormatSuccess("Auto-approved"))
		}
	case engine.OutcomeEscalated:
		fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf(
			"No confident match after %d questions. Run %d was escalated for manual classification.",
			state.Rounds, state.Run.ID)))
	}
	return nil
}

func runBulk(ctx context.Context, a *app, path string, out io.Writer) error {
	userID, err := a.userID()
	if err != nil {
		return err
	}
	eng, err := a.engine()
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open products file: %w", err)
	}
	defer func() { _ = f.Close() }()

	inputs, err := parseProductsCSV(f)
	if err != nil {
		return common.NewUserError("could not read "+path, err)
	}
	if len(inputs) == 0 {
		fmt.Fprintln(out, cli.FormatInfo("No products found in "+path))
		return nil
	}

	if manager, err := a.store.NewCheckpointManager(); err == nil {
		if err := manager.AutoCheckpoint(ctx, "bulk"); err != nil {
			a.logger.Warn("Failed to checkpoint before bulk classification", "error", err)
		}
	}

	handler := cli.NewInterruptHandler(out, "Finished products are saved. See them with: tariff runs list")
	ctx = handler.HandleInterrupts(ctx)

	fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("Classifying %d products", len(inputs))))
	progress := cli.NewBulkProgress(out, len(inputs))
	items, err := eng.ClassifyBulk(ctx, userID, inputs, progress.Observe)
	if finishErr := progress.Finish(items); finishErr != nil {
		a.logger.Warn("Failed to print bulk summary", "error", finishErr)
	}
	if handler.WasInterrupted() {
		return nil
	}
	return err
}
