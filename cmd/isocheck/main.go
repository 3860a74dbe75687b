// Command isocheck is the consistency-checker CLI: it loads a recorded
// history and reports the weakest isolation/consistency level it
// violates, or that it verifies at every level up to the requested
// target.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/go-isolation/isocheck/config"
	"github.com/go-isolation/isocheck/txn"
	"github.com/go-isolation/isocheck/txnlog"
	"github.com/go-isolation/isocheck/verifier"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "isocheck",
		Short: "Distributed transaction consistency/isolation-level verifier",
	}

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a recorded history against a consistency model",
		RunE:  runVerify,
	}
	verifyCmd.Flags().String("in", "", "input directory containing history.json (required)")
	verifyCmd.Flags().String("out", "", "output directory, created if absent (required)")
	verifyCmd.Flags().Bool("sat", false, "use the SAT backend instead of constrained linearization")
	verifyCmd.Flags().Bool("bic", false, "shard verification across biconnected components")
	verifyCmd.Flags().String("cons", "", "target model: rc|rr|ra|cc|pre|si|ser (empty means Inc)")
	verifyCmd.Flags().String("config", "", "optional YAML config file (solver path, log level, out dir)")
	_ = verifyCmd.MarkFlagRequired("in")
	_ = verifyCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(verifyCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runVerify(cmd *cobra.Command, args []string) error {
	in, _ := cmd.Flags().GetString("in")
	out, _ := cmd.Flags().GetString("out")
	useSAT, _ := cmd.Flags().GetBool("sat")
	useBic, _ := cmd.Flags().GetBool("bic")
	cons, _ := cmd.Flags().GetString("cons")
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.Merge("", "", out)

	model, err := txn.ParseLevel(cons)
	if err != nil {
		return err
	}

	h, err := txnlog.Load(filepath.Join(in, "history.json"))
	if err != nil {
		return err
	}

	v, err := verifier.New(model, useSAT, useBic, cfg.SolverPath, cfg.OutDir, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer v.Close()

	report, err := v.Verify(context.Background(), h)
	if err != nil {
		return err
	}

	if report.OK() {
		fmt.Printf("hist-%05d done\n", h.Params.ID)
		return nil
	}
	fmt.Printf("hist-%05d failed - minimum level failed %s\n", h.Params.ID, *report.Violation)
	return nil
}
