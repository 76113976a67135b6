package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"organism/internal/runtime"
)

// replayCmd re-derives the state from the durable logs and reports the
// divergence from the live vector.
var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay the event log and verify it reproduces the live state",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		res, err := engine.VerifyReplay()
		if err != nil {
			return err
		}
		fmt.Printf("ticks:      %d\n", res.Ticks)
		fmt.Printf("applied:    %d\n", res.Applied)
		fmt.Printf("skipped:    %d\n", res.Skipped)
		fmt.Printf("divergence: %.9f\n", res.Divergence)
		if res.Divergence > 1e-6 {
			return fmt.Errorf("replay diverged from live state by %.9f", res.Divergence)
		}
		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Inspect the live state, bindings, and operator history",
}

var inspectStateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the current state vector by axis",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		status, err := engine.Status()
		if err != nil {
			return err
		}
		names := make([]string, 0, len(status))
		for name := range status {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("%-20s %.4f\n", name, status[name])
		}
		return nil
	},
}

var inspectBindingsCmd = &cobra.Command{
	Use:   "bindings",
	Short: "Print the live event-type routing",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		bindings, err := engine.Bindings()
		if err != nil {
			return err
		}
		for _, b := range bindings {
			fmt.Printf("%-16s encoder=%-12s %s v%d\n", b.EventType, b.EncoderName, b.MatrixName, b.MatrixVersion)
		}
		return nil
	},
}

var inspectOperatorCmd = &cobra.Command{
	Use:   "operator [name]",
	Short: "Print the version history of a named operator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		history, err := engine.OperatorHistory(args[0])
		if err != nil {
			return err
		}
		for _, info := range history {
			fmt.Printf("v%-4d %dx%d parent=v%d %s\n",
				info.Version, info.Rows, info.Cols, info.ParentVersion,
				info.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var inspectUpdatesCmd = &cobra.Command{
	Use:   "updates",
	Short: "Print recent plasticity updates from the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		rows, err := engine.UpdateHistory(20)
		if err != nil {
			return err
		}
		for _, r := range rows {
			status := "pending"
			if r.RolledBack {
				status = "rolled-back"
			} else if r.PainAfter != nil {
				status = "kept"
			}
			fmt.Printf("#%-5d %-14s %s v%d->v%d reward=%+.2f dF=%.4f %s\n",
				r.ID, r.EventType, r.MatrixName, r.FromVersion, r.ToVersion,
				r.Reward, r.DeltaFrobenius, status)
		}
		return nil
	},
}

func init() {
	inspectCmd.AddCommand(inspectStateCmd)
	inspectCmd.AddCommand(inspectBindingsCmd)
	inspectCmd.AddCommand(inspectOperatorCmd)
	inspectCmd.AddCommand(inspectUpdatesCmd)
}

func openEngine() (*runtime.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	engine, err := runtime.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Debug("engine opened", zap.String("db", cfg.DBPath))
	return engine, nil
}
