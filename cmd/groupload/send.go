package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/agbruneau/groupload/internal/config"
	"github.com/agbruneau/groupload/internal/generator"
	"github.com/agbruneau/groupload/internal/logging"
	"github.com/agbruneau/groupload/internal/monitor"
	"github.com/agbruneau/groupload/internal/producer"
	"github.com/agbruneau/groupload/internal/retry"
	"github.com/agbruneau/groupload/pkg/models"
	"github.com/spf13/cobra"
)

// errRecordsFailed makes the process exit with status 1 after a run whose
// summary has already been printed.
var errRecordsFailed = errors.New("some records could not be delivered")

// sendOptions are the flags shared by the send commands.
type sendOptions struct {
	resubmit   int
	deadLetter string
	dashboard  bool
}

func (o *sendOptions) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&o.resubmit, "resubmit", config.ResubmitMaxAttempts, "resubmission rounds for failed records (0 disables)")
	cmd.Flags().BoolVar(&o.dashboard, "dashboard", false, "show a live delivery dashboard")
}

// batch is the input of one publishing run.
type batch struct {
	records  []models.GroupRecord
	rejected []rejection // Entries that could not be parsed.
	raw      map[string]json.RawMessage
}

type rejection struct {
	key string
	err error
}

func (b batch) size() int {
	return len(b.records) + len(b.rejected)
}

func newSendSampleCmd(a *app) *cobra.Command {
	var (
		opts      sendOptions
		count     int
		corporate bool
		company   string
		employees int
	)
	cmd := &cobra.Command{
		Use:   "send-sample",
		Short: "Send sample group data to Kafka",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := a.generate(count, corporate && !cmd.Flags().Changed("count"), corporate, company, employees)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sending %d sample group(s) to Kafka...\n", len(records))
			return a.publish(cmd, batch{records: records}, opts)
		},
	}
	cmd.Flags().IntVarP(&count, "count", "c", config.GeneratorSendCount, "number of groups to generate and send")
	cmd.Flags().BoolVar(&corporate, "corporate", false, "generate corporate group data")
	cmd.Flags().StringVar(&company, "company-name", config.GeneratorDefaultCompany, "company name for corporate groups")
	cmd.Flags().IntVar(&employees, "employees", config.GeneratorSendEmployees, "number of employees for corporate groups")
	opts.register(cmd)
	return cmd
}

func newSendFileCmd(a *app) *cobra.Command {
	var opts sendOptions
	cmd := &cobra.Command{
		Use:   "send-file PATH",
		Short: "Send group data from a JSON file to Kafka",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("unable to read %s: %w", args[0], err)
			}
			b, err := parseBatch(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sending group data from %s...\n", args[0])
			return a.publish(cmd, b, opts)
		},
	}
	opts.register(cmd)
	cmd.Flags().StringVar(&opts.deadLetter, "dead-letter", "", "append records still failing to this JSON lines file")
	return cmd
}

// parseBatch splits a file into records. A record that fails to parse is
// kept as a rejection so it is reported and counted, not dropped.
func parseBatch(data []byte) (batch, error) {
	raws, err := models.SplitRecords(data)
	if err != nil {
		return batch{}, err
	}
	b := batch{raw: make(map[string]json.RawMessage, len(raws))}
	for _, raw := range raws {
		rec, err := models.ParseGroup(raw)
		if err != nil {
			key := models.PeekGroupID(raw)
			b.rejected = append(b.rejected, rejection{key: key, err: err})
			b.raw[key] = raw
			continue
		}
		b.records = append(b.records, rec)
		b.raw[rec.GroupID] = raw
	}
	return b, nil
}

// generate builds sample records. single yields one corporate group, as
// when --corporate is given without --count.
func (a *app) generate(count int, single, corporate bool, company string, employees int) ([]models.GroupRecord, error) {
	gen := generator.New(generator.WithMaxMembers(a.cfg.Generator.MaxMembers))
	if !corporate {
		return gen.Generate(count, nil)
	}
	if single {
		count = 1
	}
	return gen.Generate(count, &generator.Corporate{CompanyName: company, Employees: employees})
}

// publish runs one batch through a streamer and prints the summary.
func (a *app) publish(cmd *cobra.Command, b batch, opts sendOptions) error {
	settings, err := a.settings()
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("resubmit") {
		opts.resubmit = a.cfg.Retry.MaxAttempts
	}
	a.banner(cmd, settings)

	logger := a.logger
	if opts.dashboard {
		logger = logger.Output(io.Discard)
	}

	conn, err := a.dial(settings, logger)
	if err != nil {
		return err
	}
	streamer := producer.NewWithConnection(settings, conn, logger)

	ctx := cmd.Context()
	var dashboardDone chan error
	if opts.dashboard {
		mon := monitor.New(streamer, b.size())
		dashboardDone = make(chan error, 1)
		go func() { dashboardDone <- monitor.Run(ctx, mon) }()
	}

	for _, r := range b.rejected {
		_ = streamer.Reject(r.key, r.err)
	}
	streamer.SubmitBatch(b.records)
	streamer.Flush(settings.FlushTimeout)

	records := make(map[string]models.GroupRecord, len(b.records))
	for _, rec := range b.records {
		records[rec.GroupID] = rec
	}
	failures := retry.CollectFailures(streamer, records, b.raw)
	if opts.resubmit > 0 && len(failures) > 0 {
		failures = retry.Resubmit(ctx, a.retryConfig(opts.resubmit), streamer, failures, settings.FlushTimeout,
			func(attempt int, err error, next time.Duration) {
				logger.Warn().Int("round", attempt).Err(err).Dur("next_in", next).Msg("Resubmitting failed records")
			})
	}

	closeErr := streamer.Close()
	failures = retry.Unresolved(streamer, records, b.raw, failures)

	if dashboardDone != nil {
		if err := <-dashboardDone; err != nil {
			a.logger.Warn().Err(err).Msg("Dashboard unavailable")
		}
	}
	if closeErr != nil {
		a.logger.Error().Err(closeErr).Msg("Streamer closed with undelivered records")
	}

	if err := a.writeDeadLetters(opts.deadLetter, failures); err != nil {
		return err
	}
	printSummary(cmd.OutOrStdout(), streamer.Stats(), b.size(), records, failures)
	if len(failures) > 0 {
		return errRecordsFailed
	}
	return nil
}

func (a *app) retryConfig(attempts int) retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = attempts
	if d := a.cfg.GetInitialRetryDelay(); d > 0 {
		cfg.InitialDelay = d
	}
	if d := a.cfg.GetMaxRetryDelay(); d > 0 {
		cfg.MaxDelay = d
	}
	if a.cfg.Retry.Multiplier > 0 {
		cfg.Multiplier = a.cfg.Retry.Multiplier
	}
	return cfg
}

func (a *app) writeDeadLetters(path string, failures []retry.Failure) error {
	if path == "" || len(failures) == 0 {
		return nil
	}
	dlq, err := retry.OpenDeadLetterFile(path)
	if err != nil {
		return err
	}
	for _, f := range failures {
		if err := dlq.Write(f); err != nil {
			a.logger.Error().Err(err).Str(logging.FieldKey, f.Key).Msg("Dead letter not written")
		}
	}
	stats := dlq.Stats()
	a.logger.Info().Int64("written", stats.MessagesWritten).Str("path", path).Msg("Dead letters written")
	return dlq.Close()
}

func printSummary(out io.Writer, stats producer.Stats, total int, records map[string]models.GroupRecord, failures []retry.Failure) {
	delivered := total - len(failures)
	if delivered < 0 {
		delivered = 0
	}
	fmt.Fprintf(out, "✓ Successfully sent %d/%d groups\n", delivered, total)
	if len(failures) > 0 {
		keys := make([]string, 0, len(failures))
		for _, f := range failures {
			keys = append(keys, f.Key)
		}
		fmt.Fprintf(out, "✗ Failed groups: %s\n", strings.Join(keys, ", "))
	}
	if total == 1 && len(failures) == 0 {
		for _, rec := range records {
			fmt.Fprintf(out, "Group ID: %s\n", rec.GroupID)
			fmt.Fprintf(out, "Members: %d\n", len(rec.Members))
		}
	}
	fmt.Fprintln(out, stats.String())
}
