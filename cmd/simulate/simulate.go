package simulate

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/wildalert/internal/alert"
	"github.com/tphakala/wildalert/internal/app"
	"github.com/tphakala/wildalert/internal/conf"
	"github.com/tphakala/wildalert/internal/notice"
	"github.com/tphakala/wildalert/internal/session"
)

// Options controls a simulation run.
type Options struct {
	Ticks   int
	Seed    uint64
	Verify  bool
	Message string
}

// Command runs the simulated camera feed offline for a fixed number of ticks
// and prints what the operator and the recipients would see.
func Command(settings *conf.Settings) *cobra.Command {
	opts := Options{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the detection feed for a number of ticks and print the outcome",
		Long: `Drive the simulated camera feed without waiting for the tick interval.

Examples:
  # Ten ticks with a fixed seed
  wildalert simulate --ticks=10 --seed=42

  # Verify everything that was admitted and show the recipient view
  wildalert simulate --ticks=20 --verify --message="Rangers dispatched"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(settings, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().IntVar(&opts.Ticks, "ticks", 10, "Number of feed ticks to run")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "Random seed (0 uses ingest.seed)")
	cmd.Flags().BoolVar(&opts.Verify, "verify", false, "Verify every admitted alert as the operator")
	cmd.Flags().StringVar(&opts.Message, "message", "Verified by simulation", "Operator message used with --verify")

	return cmd
}

// Run executes a simulation with settings. Logs go to logOut, the summary to out.
func Run(settings *conf.Settings, opts Options, out, logOut io.Writer) error {
	if opts.Ticks < 0 {
		return fmt.Errorf("ticks must not be negative, got %d", opts.Ticks)
	}

	s := *settings
	s.WebServer.Enabled = false
	s.MQTT.Enabled = false
	s.Seed.Demo = false
	s.Ingest.Enabled = true
	if opts.Seed != 0 {
		s.Ingest.Seed = opts.Seed
	}

	a, err := app.New(&s, app.WithConsoleWriter(logOut), app.WithoutRuntimeCollectors())
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	operator := a.Engine().Client(session.NewStatic(session.RoleOperator))
	recipient := a.Engine().Client(session.NewStatic(session.RoleRecipient))

	start := a.Engine().Now()
	admitted := 0
	for i := range opts.Ticks {
		now := start.Add(time.Duration(i) * s.Ingest.Interval)
		got, ok, err := a.Ingestor().Tick(now)
		if err != nil {
			return fmt.Errorf("tick %d: %w", i+1, err)
		}
		if !ok {
			continue
		}
		admitted++
		if opts.Verify {
			if _, err := operator.Verify(got.ID, opts.Message); err != nil {
				return fmt.Errorf("verify alert %d: %w", got.ID, err)
			}
		}
	}

	all, err := operator.VisibleAlerts(session.RoleOperator, nil)
	if err != nil {
		return err
	}
	visible, err := recipient.VisibleAlerts(session.RoleRecipient, nil)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(out, "ticks: %d  admitted: %d  visible to recipients: %d\n\n",
		opts.Ticks, admitted, len(visible)); err != nil {
		return err
	}
	if err := writeTable(out, all); err != nil {
		return err
	}
	return writeNotices(out, operator.Notices(), recipient.Notices())
}

// writeNotices lists notices still live for each audience. Quiet notices
// are marked.
func writeNotices(out io.Writer, lists ...[]notice.Notice) error {
	var b strings.Builder
	for _, list := range lists {
		for i := range list {
			n := &list[i]
			fmt.Fprintf(&b, "[%s] %s", n.Audience, n.Title)
			if n.Message != "" {
				fmt.Fprintf(&b, " - %s", n.Message)
			}
			if n.Quiet {
				b.WriteString(" (quiet)")
			}
			b.WriteByte('\n')
		}
	}
	if b.Len() == 0 {
		return nil
	}
	_, err := fmt.Fprintf(out, "\nnotices:\n%s", b.String())
	return err
}

func writeTable(out io.Writer, alerts []alert.Alert) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSPECIES\tCONFIDENCE\tCAMERA\tDETECTED\tSTATE")
	for i := range alerts {
		a := &alerts[i]
		fmt.Fprintf(w, "%d\t%s\t%d%%\t%s\t%s\t%s\n",
			a.ID, a.Species, a.Confidence, a.SourceCameraID,
			a.DetectedAt.Format(time.DateTime), a.State)
	}
	return w.Flush()
}
