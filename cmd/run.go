// cmd/run.go
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/internal/actions"
	"github.com/xkilldash9x/pagepilot/internal/agent"
	"github.com/xkilldash9x/pagepilot/internal/browser/cdp"
	"github.com/xkilldash9x/pagepilot/internal/cache"
	"github.com/xkilldash9x/pagepilot/internal/llmclient"
	"github.com/xkilldash9x/pagepilot/internal/observability"
	"github.com/xkilldash9x/pagepilot/internal/toolserver"
)

var (
	runStartURL    string
	runToolServers []string
)

var runCmd = &cobra.Command{
	Use:   "run \"task description\"",
	Short: "Run one natural-language task against a live browser.",
	Args:  cobra.ExactArgs(1),
	RunE:  runTask,
}

func init() {
	runCmd.Flags().StringVarP(&runStartURL, "url", "u", "", "URL the task starts from")
	runCmd.Flags().StringSliceVar(&runToolServers, "tool-server", nil, "websocket URL of a tool server to attach (repeatable)")
	rootCmd.AddCommand(runCmd)
}

func runTask(cmd *cobra.Command, args []string) error {
	logger := observability.GetLogger()
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := cache.NewStore(ctx, cfg.Cache)
	if err != nil {
		return fmt.Errorf("opening cache store: %w", err)
	}
	defer store.Close()

	model, err := llmclient.New(cfg.LLM, logger)
	if err != nil {
		return fmt.Errorf("building llm client: %w", err)
	}

	driver := cdp.NewDriver(logger, cfg.Browser)
	if err := driver.Start(ctx); err != nil {
		return err
	}
	defer driver.Stop()

	registry := actions.NewDefaultRegistry(logger)
	for _, url := range runToolServers {
		ts, err := toolserver.Connect(ctx, logger, url, registry)
		if err != nil {
			return fmt.Errorf("attaching tool server: %w", err)
		}
		defer ts.Detach(registry)
	}

	engine := agent.NewEngine(logger, cfg.Agent, cfg.Browser, registry, model,
		driver.Pages(), cdp.NewSnapshotter(logger), store)

	handle, err := engine.Submit(ctx, args[0], runStartURL)
	if err != nil {
		return err
	}

	// An interrupt cancels the task cooperatively; the loop stops at the
	// next cycle boundary and the partial trace is still persisted.
	go func() {
		<-ctx.Done()
		handle.Cancel()
	}()

	result := handle.Result()
	engine.Wait()

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if result.Status != "COMPLETED" {
		return fmt.Errorf("task %s finished %s", result.ID, result.Status)
	}
	logger.Info("Task finished.", zap.String("task_id", result.ID), zap.String("status", string(result.Status)))
	return nil
}
