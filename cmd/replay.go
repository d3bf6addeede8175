// cmd/replay.go
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/pagepilot/internal/browser/cdp"
	"github.com/xkilldash9x/pagepilot/internal/cache"
	"github.com/xkilldash9x/pagepilot/internal/observability"
)

var replayDebug bool

var replayCmd = &cobra.Command{
	Use:   "replay <task-id>",
	Short: "Replay a recorded task trace against a live browser, without the model.",
	Args:  cobra.ExactArgs(1),
	RunE:  replayTask,
}

func init() {
	replayCmd.Flags().BoolVar(&replayDebug, "debug", false, "log every xpath resolution attempt")
	rootCmd.AddCommand(replayCmd)
}

func replayTask(cmd *cobra.Command, args []string) error {
	logger := observability.GetLogger()
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := cache.NewStore(ctx, cfg.Cache)
	if err != nil {
		return fmt.Errorf("opening cache store: %w", err)
	}
	defer store.Close()

	driver := cdp.NewDriver(logger, cfg.Browser)
	if err := driver.Start(ctx); err != nil {
		return err
	}
	defer driver.Stop()

	replayer := cache.NewReplayer(logger, store, cache.ReplayOptions{
		MaxXPathRetries: cfg.Replay.MaxXPathRetries,
		Debug:           replayDebug || cfg.Replay.Debug,
	})

	result, err := replayer.Replay(ctx, args[0], driver.Pages())
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if result.Status != "COMPLETED" {
		return fmt.Errorf("replay %s of task %s finished %s", result.ReplayID, result.TaskID, result.Status)
	}
	return nil
}
