package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"orgterm/internal/chart"
	"orgterm/internal/directory"
	"orgterm/internal/hierarchy"
	"orgterm/internal/layout"
	"orgterm/internal/metrics"
	"orgterm/internal/store"
)

var (
	configPath    string
	directoryFlag string
	cacheFlag     string
	readOnly      bool
	logLevel      string
	metricsAddr   string
	jsonOut       bool
)

var rootCmd = &cobra.Command{
	Use:   "orgterm",
	Short: "Browse and edit an organization chart in the terminal",
	Long: `orgterm shows the reporting hierarchy of an employee directory as a
chart. Drag a card onto another to change who it reports to, collapse
branches, narrow the view to a department and export snapshots.

The hierarchy is kept in a local cache and, when a remote store is
configured, shared through it.`,
	Version:       "0.3.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default "+defaultConfigPath()+")")
	rootCmd.PersistentFlags().StringVar(&directoryFlag, "directory", "", "Employee directory JSON file")
	rootCmd.PersistentFlags().StringVar(&cacheFlag, "cache", "", "Local cache database")
	rootCmd.PersistentFlags().BoolVar(&readOnly, "read-only", false, "Disable editing")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address")

	rootCmd.AddCommand(newPrintCmd(), newExportCmd(), newSyncCmd(), newCheckCmd())
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newPrintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "print",
		Short: "Print the hierarchy as a tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()
			if jsonOut {
				raw, err := json.MarshalIndent(a.svc.Compact(), "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(raw))
				return nil
			}
			for _, line := range treeLines(a.svc.Forest(), a.dir) {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the stored JSON shape")
	return cmd
}

func newExportCmd() *cobra.Command {
	var department string
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Write a snapshot of the chart",
		Long: `The export command renders the chart to an image or text file. The
format follows the extension: .png, .svg or .txt.

Example:
  orgterm export chart.png
  orgterm export sales.svg --department Sales`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()
			if department != "" {
				a.svc.SetDepartment(department)
			}
			if err := exportFile(args[0], a.svc.Scene(), a.config); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&department, "department", "", "Only show this department's reporting lines")
	return cmd
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the local cache with the remote store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()
			outcome := a.svc.Sync(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "sync: %s\n", outcome)
			if outcome == chart.SyncFailed {
				return errors.New("sync failed, see log for details")
			}
			return nil
		},
	}
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the cached hierarchy",
		Long: `The check command reads the cached hierarchy without repairing it and
reports duplicate employees, cycles and employees missing from the
directory. It exits non-zero when problems are found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			dir, err := directory.OpenFile(config.DirectoryFile)
			if err != nil {
				return err
			}
			defer dir.Close()
			cache, err := store.OpenSQLiteCache(config.CacheFile, config.CacheQuotaBytes)
			if err != nil {
				return err
			}
			defer cache.Close()

			tree, found, err := store.NewPersister(cache).Load(cmd.Context())
			if err != nil {
				return err
			}
			if !found {
				fmt.Fprintln(cmd.OutOrStdout(), "no hierarchy cached")
				return nil
			}
			if err := hierarchy.Validate(tree, directory.Exists(dir)); err != nil {
				var verr *hierarchy.ValidationError
				if errors.As(err, &verr) {
					for _, p := range verr.Problems {
						fmt.Fprintln(cmd.OutOrStdout(), p)
					}
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d employees\n", hierarchy.CountCompact(tree))
			return nil
		},
	}
}

// resolveConfig loads the config file and applies the flags the user set.
func resolveConfig(cmd *cobra.Command) (*Config, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("directory") {
		config.DirectoryFile = directoryFlag
	}
	if flags.Changed("cache") {
		config.CacheFile = cacheFlag
	}
	if flags.Changed("read-only") {
		config.ReadOnly = readOnly
	}
	if flags.Changed("log-level") {
		config.LogLevel = logLevel
	}
	if flags.Lookup("metrics-addr") != nil && flags.Changed("metrics-addr") {
		config.MetricsAddr = metricsAddr
	}
	return config, nil
}

type app struct {
	config  *Config
	log     *logrus.Entry
	logFile io.Closer
	dir     *directory.File
	cache   *store.SQLiteCache
	svc     *chart.Service
}

func openApp(cmd *cobra.Command, tui bool) (*app, error) {
	config, err := resolveConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, logFile, err := newLogger(config, tui)
	if err != nil {
		return nil, err
	}
	log := logrus.NewEntry(logger)
	a := &app{config: config, log: log, logFile: logFile}

	a.dir, err = directory.OpenFile(config.DirectoryFile, directory.WithLogger(log.WithField("component", "directory")))
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(config.CacheFile), 0o755); err != nil {
		a.Close()
		return nil, errors.Wrap(err, "create cache directory")
	}
	a.cache, err = store.OpenSQLiteCache(config.CacheFile, config.CacheQuotaBytes)
	if err != nil {
		a.Close()
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"directory": a.dir.Path(),
		"cache":     a.cache.Path(),
	}).Info("stores opened")

	opts := []store.Option{store.WithLogger(log.WithField("component", "store"))}
	remote, err := store.OpenRemote(cmd.Context(), config.Remote)
	switch {
	case errors.Is(err, store.ErrNoRemote):
	case err != nil:
		log.WithError(err).WithField("store", config.Remote.Driver).Warn("remote store unavailable, using the local cache only")
	default:
		opts = append(opts, store.WithRemote(remote))
	}

	a.svc = chart.New(a.dir, store.NewPersister(a.cache, opts...),
		chart.WithLogger(log.WithField("component", "chart")),
		chart.WithEditable(config.canEdit()),
		chart.WithLayout(config.layoutConfig()),
		chart.WithUser(config.User),
	)
	if err := a.svc.Load(cmd.Context()); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.svc != nil {
		if err := a.svc.Close(ctx); err != nil {
			a.log.WithError(err).Warn("close chart")
		}
	}
	if a.cache != nil {
		a.cache.Close()
	}
	if a.dir != nil {
		a.dir.Close()
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}

func runTUI(cmd *cobra.Command) error {
	a, err := openApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.config.MetricsAddr != "" {
		addr, shutdown, err := metrics.Serve(a.config.MetricsAddr)
		if err != nil {
			return err
		}
		a.log.WithField("addr", addr).Info("serving metrics")
		defer shutdown(context.Background())
	}

	m := initialModel(a.config, a.svc, a.log)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithReportFocus())

	a.svc.WatchDirectory(func() { p.Send(directoryChangedMsg{}) })
	if err := a.dir.Watch(); err != nil {
		a.log.WithError(err).Warn("directory changes will not be picked up")
	}

	_, err = p.Run()
	return err
}

// treeLines draws the forest as an indented tree.
func treeLines(f *hierarchy.Forest, dir directory.Provider) []string {
	var lines []string
	var walk func(n *hierarchy.Node, prefix string, last, root bool)
	walk = func(n *hierarchy.Node, prefix string, last, root bool) {
		label := n.EmployeeID
		if e, ok := dir.Get(n.EmployeeID); ok {
			label = e.DisplayName()
			if e.Title != "" {
				label += " (" + e.Title + ")"
			}
			if e.Inactive() {
				label += " [inactive]"
			}
		}
		branch, next := "", ""
		if !root {
			branch, next = "├── ", "│   "
			if last {
				branch, next = "└── ", "    "
			}
		}
		lines = append(lines, prefix+branch+label)
		for i, c := range n.Children {
			walk(c, prefix+next, i == len(n.Children)-1, false)
		}
	}
	for _, r := range f.Roots() {
		walk(r, "", true, true)
	}
	if len(lines) == 0 {
		return []string{"(empty chart)"}
	}
	return lines
}

func exportFile(path string, scene *layout.Scene, config *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return exportPNG(path, scene)
	case ".svg":
		return exportSVG(path, scene)
	case ".txt":
		return exportTXT(path, scene, config)
	}
	return errors.Errorf("unsupported export format %q", filepath.Ext(path))
}
