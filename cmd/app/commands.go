package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yanqian/qa-trainer/internal/domain/experiment"
	"github.com/yanqian/qa-trainer/internal/domain/training"
	apperrors "github.com/yanqian/qa-trainer/pkg/errors"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "qa-trainer",
		Short:         "validate and run question answering training experiments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "service config file (default: $CONFIG_PATH or configs/config.yaml)")

	root.AddCommand(
		newValidateCmd(),
		newTrainCmd(opts),
		newServeCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newValidateCmd() *cobra.Command {
	var checkPaths bool
	cmd := &cobra.Command{
		Use:   "validate <experiment.json>",
		Short: "parse an experiment configuration and print its settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := experiment.Load(args[0])
			if err != nil {
				return err
			}
			if checkPaths {
				if err := cfg.VerifyPaths(); err != nil {
					return err
				}
			}
			printSummary(cmd.OutOrStdout(), cfg)
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "%s is valid\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&checkPaths, "check-paths", false, "verify that data and embedding files exist")
	return cmd
}

func newTrainCmd(opts *rootOptions) *cobra.Command {
	var (
		name    string
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "train <experiment.json>",
		Short: "run a training experiment to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return apperrors.Wrap(apperrors.CodeMissingDependency, "experiment config "+args[0], err)
			}
			app, cleanup, err := initializeApp(opts.configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			run, trainErr := app.Service().Train(cmd.Context(), training.SubmitRequest{Name: name, Config: data})
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(run); err != nil {
					return err
				}
			} else if run.ID != uuid.Nil {
				printRun(cmd.OutOrStdout(), run)
			}
			return trainErr
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "run name (default: model class)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the finished run as JSON")
	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "start the HTTP API and the training worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := initializeApp(opts.configPath)
			if err != nil {
				return err
			}
			defer cleanup()
			return app.Run(cmd.Context())
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "qa-trainer %s\n", version)
		},
	}
}

func printSummary(w io.Writer, cfg experiment.Config) {
	key := color.New(color.FgCyan)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, field := range cfg.Summary() {
		fmt.Fprintf(tw, "%s\t%s\n", key.Sprint(field.Key), field.Value)
	}
	tw.Flush()
}

func printRun(w io.Writer, run training.Run) {
	status := color.New(color.FgGreen)
	if run.Status == training.RunStatusFailed {
		status = color.New(color.FgRed)
	}
	fmt.Fprintf(w, "run %s (%s) ", run.ID, run.ModelClass)
	status.Fprintln(w, run.Status)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "epoch\ttrain_loss\tval_loss\tval_acc\tmetric\t")
	for _, epoch := range run.Epochs {
		marker := ""
		if epoch.Improved {
			marker = "*"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s%s\t\n",
			epoch.Epoch,
			formatMetric(epoch.Train.Loss),
			formatMetric(epoch.Validation.Loss),
			formatMetric(epoch.Validation.Accuracy),
			formatMetric(epoch.Metric), marker,
		)
	}
	tw.Flush()
	if run.BestEpoch != nil {
		fmt.Fprintf(w, "best epoch: %d\n", *run.BestEpoch)
	}
	if run.FailureReason != nil {
		color.New(color.FgRed).Fprintf(w, "failure: %s\n", *run.FailureReason)
	}
}

func formatMetric(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// exitCode maps configuration problems to 2 so scripts can tell them
// apart from training failures.
func exitCode(err error) int {
	switch apperrors.CodeOf(err) {
	case apperrors.CodeMalformedConfig, apperrors.CodeMissingDependency:
		return 2
	}
	return 1
}
