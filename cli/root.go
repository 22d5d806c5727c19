// Package cli is the command surface a deployer program embeds. The
// program declares its resource graph, fills in Options, and hands
// control to Execute, which parses the apply/destroy command line and
// runs the pass against the graph.
package cli

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zsec-io/zdeploy/deploy"
	"github.com/zsec-io/zdeploy/recorder"
	"github.com/zsec-io/zdeploy/session"
)

// Options wires a deployer program into the command surface.
type Options struct {
	// Use is the program name shown in help output.
	Use string

	// Manager names the owner of every resource this program deploys.
	// Records are stamped with it and garbage collection is scoped by
	// it. Required as soon as a Recorder is set or GC is enabled.
	Manager string

	// Graph declares the resources the program owns.
	Graph *deploy.Graph

	// Sessions resolves per-account sessions. Nil means the ambient
	// default credential chain.
	Sessions session.Source

	// Account pins the account number. When empty and a Recorder is
	// set, it is resolved from the session's caller identity.
	Account string

	// Region is the default region for nodes that do not override it.
	Region string

	// Recorder persists deployment records. Nil disables recording,
	// and with it garbage collection.
	Recorder recorder.Recorder

	// SupportGC sweeps stale records after the pass. GCAccount
	// optionally narrows the sweep to one account within the manager
	// scope.
	SupportGC bool
	GCAccount string

	// Logger overrides the logger built from --verbose.
	Logger *slog.Logger
}

// Execute parses os.Args and runs the selected subcommand. A command
// line that names no subcommand runs apply.
func Execute(opts Options) error {
	root := NewRootCommand(opts)
	root.SetArgs(defaultToApply(os.Args[1:]))
	return root.Execute()
}

// NewRootCommand builds the root command with the apply and destroy
// subcommands bound to opts.
func NewRootCommand(opts Options) *cobra.Command {
	r := &runner{opts: opts}

	use := opts.Use
	if use == "" {
		use = "zdeploy"
	}
	root := &cobra.Command{
		Use:           use,
		Short:         "Deploy a declared resource graph",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := r.validate(); err != nil {
				return err
			}
			r.log = r.logger()
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&r.verbose, "verbose", "v", false,
		"log at debug level")

	root.AddCommand(newApplyCommand(r))
	root.AddCommand(newDestroyCommand(r))
	return root
}

// runner carries the parsed flags and options through one invocation.
type runner struct {
	opts Options

	force        bool
	onlyZTIDs    []string
	deploymentID string
	dryGC        bool
	verbose      bool

	log *slog.Logger
}

// addCommonFlags registers the flags apply and destroy share.
func addCommonFlags(cmd *cobra.Command, r *runner) {
	cmd.Flags().StringSliceVar(&r.onlyZTIDs, "only-ztids", nil,
		"only touch resources with these ztids; disables garbage collection")
	cmd.Flags().StringVar(&r.deploymentID, "deployment-id", "",
		"deployment id for mark and sweep garbage collection")
	cmd.Flags().BoolVar(&r.dryGC, "dry-gc", false,
		"do not garbage collect, only report")
}

// defaultToApply inserts the apply subcommand when the command line
// names none, so a bare invocation deploys.
func defaultToApply(args []string) []string {
	for _, a := range args {
		if a == "-h" || a == "--help" {
			return args
		}
		if !strings.HasPrefix(a, "-") {
			return args
		}
	}
	return append([]string{"apply"}, args...)
}
