package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/agbruneau/groupload/internal/config"
	"github.com/agbruneau/groupload/internal/tracker"
	"github.com/spf13/cobra"
)

var errInvalidMessages = errors.New("the topic holds invalid messages")

func newGenerateDataCmd(a *app) *cobra.Command {
	var (
		output    string
		count     int
		corporate bool
		company   string
		employees int
	)
	cmd := &cobra.Command{
		Use:   "generate-data",
		Short: "Generate sample group data without sending it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := a.generate(count, corporate && !cmd.Flags().Changed("count"), corporate, company, employees)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(records, "", "  ")
			if err != nil {
				return fmt.Errorf("JSON marshaling error: %w", err)
			}
			if output == "" {
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			if err := os.WriteFile(output, append(data, '\n'), 0644); err != nil {
				return fmt.Errorf("unable to write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Generated data saved to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file path for generated data")
	cmd.Flags().IntVarP(&count, "count", "c", config.GeneratorFileCount, "number of groups to generate")
	cmd.Flags().BoolVar(&corporate, "corporate", false, "generate corporate group data")
	cmd.Flags().StringVar(&company, "company-name", config.GeneratorDefaultCompany, "company name for corporate groups")
	cmd.Flags().IntVar(&employees, "employees", config.GeneratorFileEmployees, "number of employees for corporate groups")
	return cmd
}

func newConfigInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config-info",
		Short: "Display the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := a.settings()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Kafka Configuration")
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "Setting\tValue")
			for _, row := range settings.Redacted() {
				fmt.Fprintf(w, "%s\t%s\n", row[0], row[1])
			}
			return w.Flush()
		},
	}
}

func newVerifyCmd(a *app) *cobra.Command {
	var (
		maxMessages int
		timeout     time.Duration
		auditPath   string
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Read the topic back and check every group load message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := a.settings()
			if err != nil {
				return err
			}
			a.banner(cmd, settings)

			var audit *tracker.AuditLog
			if auditPath != "" {
				if audit, err = tracker.OpenAuditLog(auditPath); err != nil {
					return err
				}
				defer audit.Close()
			}

			cfg := tracker.DefaultConfig(settings.Topic())
			cfg.MaxMessages = maxMessages
			cfg.IdleTimeout = timeout
			v, err := a.newVerifier(settings, cfg, audit, a.logger)
			if err != nil {
				return err
			}
			defer v.Close()

			report, err := v.Run(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), report.String())
			if err != nil {
				return err
			}
			if report.Invalid > 0 {
				return errInvalidMessages
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxMessages, "max-messages", 0, "stop after this many messages (0 reads until idle)")
	cmd.Flags().DurationVar(&timeout, "timeout", tracker.DefaultConfig("").IdleTimeout, "stop when no message arrives for this long")
	cmd.Flags().StringVar(&auditPath, "audit", "", "append every message read to this JSON lines file")
	return cmd
}
