package main

import (
	"encoding/json"
	"fmt"
	"io"

	internal "github.com/ZanzyTHEbar/tagstore/tagstore"
	"github.com/ZanzyTHEbar/tagstore/tagstore/config"
	"github.com/ZanzyTHEbar/tagstore/tagstore/serializer"
	"github.com/ZanzyTHEbar/tagstore/tagstore/store"
	"github.com/ZanzyTHEbar/tagstore/tagstore/trees"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// app holds what every subcommand needs once flags and config are resolved
type app struct {
	configPath string
	cfg        *config.Config
	logger     zerolog.Logger
	factory    trees.Factory
	store      *store.FileStore
}

func newRootCmd() *cobra.Command {
	a := &app{factory: trees.NewFactory()}

	rootCmd := &cobra.Command{
		Use:           internal.DefaultAppCMDShortCut,
		Short:         "Persist tagged node trees as individual files in a directory",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default searches ./config.yaml and ~/.config/tagstore)")
	flags.String("root", "", "directory the store writes to (required)")
	flags.String("format", internal.DefaultFormat, "file format: json or yaml")
	flags.Int("workers", internal.DefaultDecodeWorkers, "files decoded concurrently by list")
	flags.String("log-level", internal.DefaultLogLevel, "log level")
	flags.Bool("pretty", false, "human readable logs")

	rootCmd.AddCommand(
		newSaveCmd(a),
		newGetCmd(a),
		newListCmd(a),
		newDeleteCmd(a),
		newUpdateCmd(a),
	)
	return rootCmd
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(a.configPath, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg
	a.logger = internal.NewLogger(cfg.Log.Level, cfg.Log.Pretty)

	fs := afero.NewOsFs()
	ser, err := serializer.New(cfg.Store.Format, fs, a.factory)
	if err != nil {
		return err
	}

	s, err := store.New(ser, a.factory, trees.NewDirectoryNode(a.factory, cfg.Store.RootFolder),
		store.WithFs(fs),
		store.WithLogger(a.logger),
		store.WithDecodeWorkers(cfg.Store.DecodeWorkers),
	)
	if err != nil {
		return err
	}
	a.store = s
	return nil
}

// printNode writes one node as an indented JSON document
func printNode(w io.Writer, n *trees.Node) error {
	doc, err := serializer.ToDocument(n)
	if err != nil {
		return err
	}
	return printJSON(w, doc)
}

// printNodeList writes nodes as a JSON array, empty when there are none
func printNodeList(w io.Writer, nodes []*trees.Node) error {
	docs := make([]serializer.Document, 0, len(nodes))
	for _, n := range nodes {
		doc, err := serializer.ToDocument(n)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}
	return printJSON(w, docs)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render nodes: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
