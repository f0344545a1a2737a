// Command relay is the multi-tenant TCP relay's entrypoint: it parses the
// flags described in the relay spec §6, builds the configured RelayTuple
// list, and runs a relayserver.Server until an interrupt or SIGTERM.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/relaycore/tcprelay/internal/config"
	"github.com/relaycore/tcprelay/internal/logging"
	"github.com/relaycore/tcprelay/internal/relayserver"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		listenText string
		srcText    string
		dstText    string
		relayList  string
		filePath   string
		verbose    bool
		workers    int
	)

	cmd := &cobra.Command{
		Use:          "relay",
		Short:        "Transparent multi-tenant TCP relay",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), runOptions{
				listenText: listenText,
				srcText:    srcText,
				dstText:    dstText,
				relayList:  relayList,
				filePath:   filePath,
				verbose:    verbose,
				workers:    workers,
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&listenText, "listen", "l", "", "inbound bind address (host:port or port)")
	flags.StringVarP(&dstText, "dst", "d", "", "outbound destination (host:port, port required)")
	flags.StringVarP(&srcText, "src", "s", "", "optional outbound bind address (host:port or host)")
	flags.StringVarP(&relayList, "relay_list", "r", "", `batch tuples: "L,S,D/L,S,D/..."`)
	flags.StringVarP(&filePath, "file", "f", "", "log file path (default: stderr)")
	flags.BoolVarP(&verbose, "verbose", "V", false, "raise log level to trace")
	flags.IntVarP(&workers, "workers", "w", runtime.GOMAXPROCS(0), "worker count")

	return cmd
}

type runOptions struct {
	listenText string
	srcText    string
	dstText    string
	relayList  string
	filePath   string
	verbose    bool
	workers    int
}

// buildTuples merges the --listen/--src/--dst trio and the --relay_list
// batch form into one []config.Tuple, matching spec §6's "alternative
// batch form" wording: both forms may be supplied and are concatenated.
func buildTuples(opts runOptions) ([]config.Tuple, error) {
	var tuples []config.Tuple

	if opts.listenText != "" || opts.dstText != "" {
		tuple, err := config.BuildTuple(opts.listenText, opts.srcText, opts.dstText)
		if err != nil {
			return nil, err
		}
		tuples = append(tuples, tuple)
	}

	if opts.relayList != "" {
		listTuples, err := config.ParseRelayList(opts.relayList)
		if err != nil {
			return nil, err
		}
		tuples = append(tuples, listTuples...)
	}

	if len(tuples) == 0 {
		return nil, fmt.Errorf("relay: no tuples configured; pass --listen/--dst or --relay_list")
	}
	return tuples, nil
}

func run(ctx context.Context, opts runOptions) error {
	log, err := logging.New(logging.Options{FilePath: opts.filePath, Verbose: opts.verbose})
	if err != nil {
		return fmt.Errorf("relay: %w", err)
	}

	tuples, err := buildTuples(opts)
	if err != nil {
		return fmt.Errorf("relay: %w", err)
	}

	log.Info().Int("pid", os.Getpid()).Int("tuples", len(tuples)).Msg("starting relay")

	srv := relayserver.New(log, relayserver.Options{Workers: opts.workers})
	if _, err := srv.Run(tuples); err != nil {
		return fmt.Errorf("relay: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()

	log.Info().Msg("received termination signal, shutting down")
	srv.Shutdown()
	return nil
}
