package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/capitalize-ai/interview-sim/internal/interview"
	"github.com/capitalize-ai/interview-sim/internal/llm"
	"github.com/capitalize-ai/interview-sim/internal/retry"
)

var runFlags struct {
	personas      []string
	repeat        int
	maxTurns      int
	skipCompleted bool
	sessionDelay  time.Duration
	metricsAddr   string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a batch of simulated interviews",
	Long: "Run one interview per persona and repetition, one after another,\n" +
		"writing a transcript and a timing file for each.",
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringSliceVar(&runFlags.personas, "persona", nil, "Only interview these personas (repeatable; default all)")
	f.IntVar(&runFlags.repeat, "repeat", 0, "Interviews per persona (default from protocol)")
	f.IntVar(&runFlags.maxTurns, "max-turns", 0, "Turn budget per interview (default from protocol)")
	f.BoolVar(&runFlags.skipCompleted, "skip-completed", false, "Skip identities that already have a transcript")
	f.DurationVar(&runFlags.sessionDelay, "session-delay", 0, "Pause between interviews")
	f.StringVar(&runFlags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running (e.g. :9090)")
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig()
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	variant, err := loadVariant(cfg)
	if err != nil {
		return err
	}
	personas, err := variant.FilterPersonas(runFlags.personas)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer startTracing(ctx, cfg, log)()

	gateway, err := llm.NewGateway(cfg.Credentials(), gatewayParams(variant))
	if err != nil {
		return err
	}

	recorder := newRecorder(cfg)
	if err := recorder.EnsureDirs(); err != nil {
		return err
	}

	opts := []interview.Option{
		interview.WithLogger(log),
		interview.WithCallDelay(cfg.CallDelay),
	}
	client, events, err := connectEvents(ctx, cfg, log)
	if err != nil {
		return err
	}
	if events != nil {
		defer client.Close()
		opts = append(opts, interview.WithEventSink(events))
	}

	controller := interview.NewController(
		gateway,
		retry.New(variant.RetryDelays, gateway.Name(), log),
		interviewProtocol(variant),
		opts...,
	)
	driver := interview.NewDriver(controller, recorder, interview.DriverConfig{
		Personas:             personas,
		InterviewsPerPersona: firstPositive(runFlags.repeat, variant.InterviewsPerPersona),
		MaxTurns:             firstPositive(runFlags.maxTurns, variant.MaxTurns),
		SkipCompleted:        runFlags.skipCompleted,
		SessionDelay:         runFlags.sessionDelay,
	}, log)

	log.Info("starting batch",
		zap.String("variant", variant.Name),
		zap.String("model", variant.Model),
		zap.String("provider", gateway.Name()),
		zap.Int("personas", len(personas)),
	)

	g, gctx := errgroup.WithContext(ctx)

	var metricsSrv *http.Server
	if runFlags.metricsAddr != "" {
		metricsSrv = &http.Server{
			Addr:              runFlags.metricsAddr,
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info("serving metrics", zap.String("addr", runFlags.metricsAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	var summary *interview.Summary
	g.Go(func() error {
		if metricsSrv != nil {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = metricsSrv.Shutdown(shutdownCtx)
			}()
		}
		var err error
		summary, err = driver.Run(gctx)
		return err
	})

	err = g.Wait()
	if summary != nil {
		printSummary(cmd.OutOrStdout(), summary)
	}
	return err
}

func printSummary(w io.Writer, s *interview.Summary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "IDENTITY\tOUTCOME\tSIGNAL\tTURNS\tSTATUS")
	for _, sess := range s.Sessions {
		status := "saved"
		switch {
		case sess.Skipped:
			status = "skipped"
		case sess.Err != nil:
			status = "persist failed"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", sess.Identity, dash(string(sess.Outcome)), dash(string(sess.Signal)), sess.Turns, status)
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "\n%d attempted: %d signaled, %d exhausted, %d aborted; %d skipped, %d failed to save\n",
		s.Attempted, s.Signaled, s.Exhausted, s.Aborted, s.Skipped, s.Failed)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
