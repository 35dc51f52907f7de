// Package cli implements the yrlkit commands: one per step of the Nheengatu embedding pipeline.
package cli

import (
	"context"
	goflag "flag"
	"fmt"
	"io"
	"os"

	"github.com/nheengatu-lab/yrlkit/hub"
	"github.com/nheengatu-lab/yrlkit/internal/config"
	"github.com/nheengatu-lab/yrlkit/internal/files"
	"github.com/nheengatu-lab/yrlkit/internal/report"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	defer klog.Flush()
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "yrlkit: %v\n", err)
		return 1
	}
	return 0
}

// app holds the state shared by the commands.
type app struct {
	configPath string
	cacheDir   string
	offline    bool

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "yrlkit",
		Short:         "Tokenizer, embedding and alignment tools for Nheengatu",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadConfig(cmd)
		},
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML configuration file (default "+config.DefaultPath+", if present)")
	cmd.PersistentFlags().StringVar(&a.cacheDir, "cache-dir", "", "directory where model files are downloaded")
	cmd.PersistentFlags().BoolVar(&a.offline, "offline", false, "don't access the network: use local model directories and cached files only")

	klogFlags := goflag.NewFlagSet("klog", goflag.ContinueOnError)
	klog.InitFlags(klogFlags)
	cmd.PersistentFlags().AddGoFlagSet(klogFlags)

	cmd.AddCommand(
		a.inspectModelCmd(),
		a.compareTokenizersCmd(),
		a.unicodeCmd(),
		a.cleanCmd(),
		a.ingestCmd(),
		a.tokensCmd(),
		a.augmentCmd(),
		a.extractCmd(),
		a.validateCmd(),
		a.visualizeCmd(),
	)
	return cmd
}

func (a *app) loadConfig(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("cache-dir") {
		cfg.Hub.CacheDir = a.cacheDir
	}
	if cmd.Flags().Changed("offline") {
		cfg.Hub.Offline = a.offline
	}
	a.cfg = cfg
	return nil
}

// repo returns the repository of a model id or local directory, configured from the hub section.
func (a *app) repo(id string) *hub.Repo {
	r := hub.New(id).
		WithAuth(os.Getenv("HF_TOKEN")).
		WithCacheDir(a.cfg.Hub.CacheDir).
		WithOffline(a.cfg.Hub.Offline)
	if a.cfg.Hub.Endpoint != "" {
		r = r.WithEndpoint(a.cfg.Hub.Endpoint)
	}
	if a.cfg.Hub.Revision != "" {
		r = r.WithRevision(a.cfg.Hub.Revision)
	}
	return r
}

func printer(cmd *cobra.Command) *report.Printer {
	return report.New(cmd.OutOrStdout())
}

// output prepares the directory of an artifact path.
func output(path string) (string, error) {
	return path, files.EnsureParentDir(path, hub.DefaultDirCreationPerm)
}

// stringFlag registers a string flag whose default comes from the configuration, resolved when
// the command runs.
type stringFlag struct {
	value   string
	cfgFunc func(*config.Config) string
}

func (a *app) addStringFlag(cmd *cobra.Command, name, usage string, cfgFunc func(*config.Config) string) *stringFlag {
	f := &stringFlag{cfgFunc: cfgFunc}
	cmd.Flags().StringVar(&f.value, name, "", usage+" (default from configuration)")
	return f
}

// get returns the flag value, or the configured default.
func (f *stringFlag) get(cfg *config.Config) string {
	if f.value != "" {
		return f.value
	}
	return f.cfgFunc(cfg)
}
