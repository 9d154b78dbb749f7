package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Archive expired drops once and exit",
	RunE:  runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	st, err := openStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := st.engine.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "archived:  %d\n", res.Archived)
	fmt.Fprintf(out, "failed:    %d\n", res.Failed)
	fmt.Fprintf(out, "remaining: %d\n", len(res.Remaining))
	fmt.Fprintf(out, "displayed: %d\n", len(res.Display))
	if res.Failed > 0 {
		return fmt.Errorf("%d drops could not be archived", res.Failed)
	}
	return nil
}
