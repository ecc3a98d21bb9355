package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pankaj-dahiya-devops/iam-policy-guard/internal/dispatch"
	"github.com/pankaj-dahiya-devops/iam-policy-guard/internal/event"
	"github.com/pankaj-dahiya-devops/iam-policy-guard/internal/providers/aws/common"
	"github.com/pankaj-dahiya-devops/iam-policy-guard/internal/version"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ipg",
		Short:         "IAM Policy Guard — mandatory-policy-attachment evaluator for AWS Config",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newEvaluateCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newEvaluateCmd() *cobra.Command {
	var (
		eventPath  string
		profile    string
		assumeRole bool
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate an AWS Config rule invocation event",
		Long: "Evaluate reads an AWS Config custom rule invocation event (the JSON\n" +
			"document delivered to the rule), runs the mandatory-policy-attachment\n" +
			"evaluation, submits the verdicts, and prints them as JSON.",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readEvent(eventPath)
			if err != nil {
				return err
			}
			ev, err := event.Parse(data)
			if err != nil {
				return err
			}
			if dryRun {
				// The reserved token makes the submission run in test mode.
				ev.ResultToken = "TESTMODE"
			}

			ctx := cmd.Context()
			cfg, err := common.LoadConfig(ctx, profile)
			if err != nil {
				return err
			}
			if assumeRole {
				if ev.ExecutionRoleARN == "" {
					return fmt.Errorf("--assume-role requires an executionRoleArn in the event")
				}
				cfg = common.AssumeExecutionRole(cfg, ev.ExecutionRoleARN)
			}

			handler := dispatch.NewHandler(dispatch.NewCollaborators(common.NewClientSet(cfg)))
			evaluations, errResp := handler.Run(ctx, ev)
			if errResp != nil {
				printJSON(cmd.OutOrStdout(), errResp)
				if errResp.Internal() {
					return fmt.Errorf("evaluation failed: %s", errResp.InternalErrorMessage)
				}
				return nil
			}
			printJSON(cmd.OutOrStdout(), evaluations)
			return nil
		},
	}

	cmd.Flags().StringVar(&eventPath, "event", "-", "path to the invocation event JSON ('-' reads stdin)")
	cmd.Flags().StringVar(&profile, "profile", "", "AWS profile to use (default profile when empty)")
	cmd.Flags().BoolVar(&assumeRole, "assume-role", false, "assume the event's execution role for cross-account evaluation")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute verdicts but submit in test mode")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the ipg version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), version.Info())
		},
	}
}

// readEvent loads the invocation event from a file, or from stdin when
// path is "-".
func readEvent(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read event from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read event file: %w", err)
	}
	return data, nil
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
