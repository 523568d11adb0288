package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pcastell/mend/internal/config"
	"github.com/pcastell/mend/internal/history"
)

var flagShowCode bool

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <episode-id>",
		Short: "Replay a persisted episode",
		Args:  cobra.ExactArgs(1),
		RunE:  showEpisode,
	}
	cmd.Flags().BoolVar(&flagShowCode, "code", false, "include attempt code in the output")
	return cmd
}

func showEpisode(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ep, err := store.Read(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Episode: %s\n", ep.ID)
	fmt.Printf("Task: %s\n", ep.TaskName)
	fmt.Printf("Status: %s\n", ep.Status)
	fmt.Printf("Started: %s\n", ep.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Attempts: %d\n", len(ep.Triples))

	for _, t := range ep.Triples {
		fmt.Printf("\n--- attempt %d: %s ---\n", t.Attempt.Iteration, t.Diagnosis.Category)
		if t.Diagnosis.Feedback != "" {
			fmt.Printf("feedback: %s\n", indent(t.Diagnosis.Feedback))
		}
		if t.Result.Duration > 0 {
			fmt.Printf("duration: %s\n", t.Result.Duration)
		}
		if flagShowCode && t.Attempt.Code != "" {
			fmt.Printf("code:\n%s\n", t.Attempt.Code)
		}
	}

	if ep.FinalCode != "" {
		fmt.Printf("\n--- final code ---\n%s\n", ep.FinalCode)
	}
	return nil
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recent episodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			eps, err := store.ListEpisodes(20)
			if err != nil {
				return err
			}
			for _, ep := range eps {
				fmt.Printf("%s  %-10s  %-20s  %s\n",
					ep.ID, ep.Status, ep.TaskName, ep.StartedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

// openStore opens the history database named by the run config.
func openStore() (*history.Store, error) {
	cfg, err := config.LoadRunConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	return history.NewStore(cfg.History.Path)
}

func indent(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 1 {
		return lines[0]
	}
	return "\n  " + strings.Join(lines, "\n  ")
}
