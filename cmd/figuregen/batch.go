package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/figuregen-backend/internal/app"
	"github.com/yungbote/figuregen-backend/internal/data/repos"
	"github.com/yungbote/figuregen-backend/internal/domain/figures"
	"github.com/yungbote/figuregen-backend/internal/modules/generation"
	"github.com/yungbote/figuregen-backend/internal/platform/dbctx"
)

const batchPageSize = 500

func newBatchCmd() *cobra.Command {
	var (
		action string
		state  string
	)
	cmd := &cobra.Command{
		Use:   "batch [ids...]",
		Short: "Run a generation stage over many figures in waves",
		Long: `Runs instructions or svg generation for the given figure ids, or for every
figure in --state, in waves. Each wave waits for its figures to settle
before the next one starts.`,
		Example: `  figuregen batch --action instructions --state pending
  figuregen batch --action svg 3f1c... 9a2e...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, ok := figures.ParseStage(action)
			if !ok {
				return fmt.Errorf("unknown --action %q (instructions|svg)", action)
			}
			if len(args) == 0 && state == "" {
				return fmt.Errorf("pass figure ids or --state")
			}
			return runBatch(cmd.Context(), stage, figures.State(strings.ToLower(state)), args)
		},
	}
	cmd.Flags().StringVar(&action, "action", "instructions", "stage to run: instructions or svg")
	cmd.Flags().StringVar(&state, "state", "", "select every figure in this state (pending, processing, completed, failed)")
	return cmd
}

func runBatch(parent context.Context, stage figures.Stage, state figures.State, rawIDs []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, log, cfg)
	if err != nil {
		return err
	}
	a.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		a.Shutdown(shutdownCtx)
	}()

	ids, err := selectFigures(ctx, a.Repos.Figures, state, rawIDs)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println(color.YellowString("No figures selected."))
		return nil
	}

	fmt.Println(color.CyanString("Running %s for %d figure(s)...", stage, len(ids)))
	started := time.Now()
	final, err := a.SettlingBatches().Run(ctx, stage, ids, printWave)
	if err != nil {
		return err
	}
	printSummary(final, time.Since(started))
	if final.Failed > 0 {
		return fmt.Errorf("%d of %d figure(s) failed", final.Failed, final.Total)
	}
	return nil
}

func selectFigures(ctx context.Context, figureRepo repos.FigureRepo, state figures.State, rawIDs []string) ([]uuid.UUID, error) {
	if len(rawIDs) > 0 {
		ids := make([]uuid.UUID, 0, len(rawIDs))
		for _, raw := range rawIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid figure id %q", raw)
			}
			ids = append(ids, id)
		}
		return ids, nil
	}
	if !state.Valid() {
		return nil, fmt.Errorf("unknown --state %q", state)
	}

	var ids []uuid.UUID
	for offset := 0; ; offset += batchPageSize {
		page, _, err := figureRepo.List(dbctx.New(ctx), repos.FigureFilter{State: state, Limit: batchPageSize, Offset: offset})
		if err != nil {
			return nil, err
		}
		for _, f := range page {
			ids = append(ids, f.ID)
		}
		if len(page) < batchPageSize {
			return ids, nil
		}
	}
}

func printWave(p *generation.BatchProgress) {
	if p.Done {
		return
	}
	fmt.Printf("%s wave %d/%d  %s %d  %s %d  of %d\n",
		color.CyanString("▸"), p.Wave, p.Waves,
		color.GreenString("done"), p.Completed,
		color.RedString("failed"), p.Failed,
		p.Total)
}

func printSummary(p *generation.BatchProgress, elapsed time.Duration) {
	fmt.Println(color.CyanString("--- Batch Summary ---"))
	for _, e := range p.Errors {
		fmt.Printf("%s %s: %s\n", color.RedString("✗"), e.FigureID, e.Error)
	}
	mark := color.GreenString("✓")
	if p.Failed > 0 {
		mark = color.YellowString("!")
	}
	fmt.Printf("%s %d completed, %d failed in %s\n", mark, p.Completed, p.Failed, elapsed.Round(time.Second))
}
