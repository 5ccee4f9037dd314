package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/AnatoleLucet/finder"
	"github.com/AnatoleLucet/finder/metrics"
	"github.com/AnatoleLucet/finder/rules"
	"github.com/AnatoleLucet/finder/scene"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
)

type app struct {
	scenePath string
	rulePath  string
	vars      []string
	logLevel  string
	logFormat string
	metrics   bool

	logger   *slog.Logger
	registry *scene.Registry
	gatherer *prometheus.Registry
}

// session is a loaded scene with a locator configured by the rule file, if any.
type session struct {
	graph   *scene.Graph
	locator *finder.Locator
	rule    *rules.File
}

func newRootCmd() *cobra.Command {
	a := &app{registry: scene.NewRegistry()}

	root := &cobra.Command{
		Use:           "facetctl",
		Short:         "Resolve facets from a scene with a locator rule",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			a.logger = newLogger(a.logLevel, a.logFormat, cmd.ErrOrStderr())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.scenePath, "scene", "s", "", "Path to the YAML scene file")
	flags.StringVarP(&a.rulePath, "rule", "r", "", "Path to a YAML or HCL rule file")
	flags.StringArrayVar(&a.vars, "var", nil, "Rule variable as key=value, repeatable")
	flags.StringVar(&a.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	flags.StringVar(&a.logFormat, "log-format", "text", "Log format: text or json")
	flags.BoolVar(&a.metrics, "metrics", false, "Print locator metrics to stderr when done")
	_ = root.MarkPersistentFlagRequired("scene")

	root.AddCommand(a.resolveCmd())
	root.AddCommand(a.requireCmd())
	root.AddCommand(a.treeCmd())

	return root
}

func parseVars(pairs []string) (map[string]string, error) {
	vars := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --var %q, expected key=value", pair)
		}
		vars[name] = value
	}
	return vars, nil
}

func (a *app) open() (*session, error) {
	g, err := scene.LoadFile(a.scenePath, a.registry)
	if err != nil {
		return nil, err
	}

	opts := []finder.Option{
		finder.WithLogger(a.logger),
		finder.WithCallSites(finder.RuntimeCallSites),
		finder.Confined(),
	}
	if a.metrics {
		a.gatherer = prometheus.NewRegistry()
		opts = append(opts, finder.WithObserver(metrics.New(a.gatherer)))
	}

	s := &session{graph: g, locator: finder.New(g, opts...)}

	if a.rulePath == "" {
		return s, nil
	}

	vars, err := parseVars(a.vars)
	if err != nil {
		return nil, err
	}

	s.rule, err = rules.NewLoader(a.logger, vars).Load(a.rulePath)
	if err != nil {
		return nil, err
	}
	if err := s.rule.Apply(s.locator, g, a.registry); err != nil {
		return nil, fmt.Errorf("%s: %w", a.rulePath, err)
	}

	a.logger.Debug("rule applied", "mode", s.locator.Mode().String(), "scope", s.locator.Scope().String())
	return s, nil
}

func (a *app) dumpMetrics(w io.Writer) error {
	if a.gatherer == nil {
		return nil
	}

	families, err := a.gatherer.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// dumpOnExit prints the metrics once a command returns, failed or not.
func (a *app) dumpOnExit(cmd *cobra.Command, errp *error) {
	if err := a.dumpMetrics(cmd.ErrOrStderr()); err != nil && *errp == nil {
		*errp = err
	}
}

func (a *app) resolveCmd() *cobra.Command {
	var all bool
	var from string

	cmd := &cobra.Command{
		Use:   "resolve <kind>",
		Short: "Resolve the facets of a kind with the current rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			defer a.dumpOnExit(cmd, &err)

			s, err := a.open()
			if err != nil {
				return err
			}

			var start finder.Node
			if from != "" {
				n, ok := s.graph.NodeByName(from)
				if !ok {
					return fmt.Errorf("no node %q", from)
				}
				start = n
			}

			q := a.registry.Query(args[0])
			out := cmd.OutOrStdout()

			if all {
				var found []finder.Facet
				if start != nil {
					found, err = finder.FindAllFrom(s.locator, start, q)
				} else {
					found, err = finder.FindAll(s.locator, q)
				}
				if err != nil {
					return err
				}

				for _, f := range found {
					fmt.Fprintln(out, describe(f))
				}
			} else {
				var found finder.Facet
				if start != nil {
					found, err = finder.FindFrom(s.locator, start, q)
				} else {
					found, err = finder.Find(s.locator, q)
				}
				if err != nil {
					return err
				}

				if found == nil {
					fmt.Fprintln(out, "<none>")
				} else {
					fmt.Fprintln(out, describe(found))
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Resolve every matching facet")
	cmd.Flags().StringVar(&from, "from", "", "Search from this node name or path instead of the rule's anchor")

	return cmd
}

func (a *app) requireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "require [kind...]",
		Short: "Check that facets of every kind are present, defaulting to the rule's requires list",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			defer a.dumpOnExit(cmd, &err)

			s, err := a.open()
			if err != nil {
				return err
			}

			var queries []finder.Query
			switch {
			case len(args) > 0:
				for _, kind := range args {
					queries = append(queries, a.registry.Query(kind))
				}
			case s.rule != nil:
				queries = s.rule.Queries(a.registry)
			}
			if len(queries) == 0 {
				return errors.New("nothing to require: pass kinds or a rule with requires")
			}

			ok, err := finder.Requires(s.locator, queries...)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("requirements not met")
			}

			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func (a *app) treeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Print the scene hierarchy with tags and facets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, err := scene.LoadFile(a.scenePath, a.registry)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			g.Walk(func(n *scene.Node, depth int) bool {
				line := strings.Repeat("  ", depth) + n.Name()
				if tag := n.Tag(); tag != finder.DefaultTag {
					line += " [" + tag + "]"
				}

				var facets []string
				for _, f := range n.Facets() {
					facets = append(facets, describe(f))
				}
				if len(facets) > 0 {
					line += ": " + strings.Join(facets, ", ")
				}

				fmt.Fprintln(out, line)
				return true
			})
			return nil
		},
	}
}

func describe(f finder.Facet) string {
	c, ok := f.(*scene.Component)
	if !ok {
		return fmt.Sprint(f)
	}
	if len(c.Props) == 0 {
		return c.Kind
	}

	parts := []string{c.Kind}
	for _, k := range slices.Sorted(maps.Keys(c.Props)) {
		parts = append(parts, k+"="+c.Props[k])
	}
	return strings.Join(parts, " ")
}
