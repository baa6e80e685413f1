package main

import (
	"fmt"

	"github.com/ZanzyTHEbar/tagstore/tagstore/trees"

	"github.com/spf13/cobra"
)

func newSaveCmd(a *app) *cobra.Command {
	var (
		tags    []string
		payload string
		members []string
	)

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save a new node and print the path of the file written",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			children := make([]*trees.Node, 0, len(members))
			for _, text := range members {
				children = append(children, trees.NewStringNode(a.factory, text))
			}

			builder := trees.NewNodeBuilder(a.factory).
				WithTagNames(tags...).
				WithPayload(payload)
			if len(children) > 0 {
				builder = builder.WithMembers(children...)
			}
			node, err := builder.Build()
			if err != nil {
				return err
			}

			ref, err := a.store.Save(cmd.Context(), node)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), ref.Payload())
			return err
		},
	}

	cmd.Flags().StringSliceVarP(&tags, "tag", "t", []string{trees.TagString.String()}, "tags for the node")
	cmd.Flags().StringVarP(&payload, "payload", "p", "", "payload text")
	cmd.Flags().StringArrayVarP(&members, "member", "m", nil, "add a STRING child with this text (repeatable)")
	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "Print the node stored in a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			node, err := a.store.Get(cmd.Context(), trees.NewFileReference(a.factory, args[0]))
			if err != nil {
				return err
			}
			return printNode(cmd.OutOrStdout(), node)
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every node in the store directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			nodes, err := a.store.GetAll(cmd.Context())
			if err != nil {
				return err
			}
			return printNodeList(cmd.OutOrStdout(), nodes)
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <path>",
		Short: "Delete a stored node file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.store.Delete(cmd.Context(), trees.NewFileReference(a.factory, args[0]))
		},
	}
}

func newUpdateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:    "update <path>",
		Short:  "Not supported: delete and save instead",
		Args:   cobra.ExactArgs(1),
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.store.Update(cmd.Context(), trees.NewFileReference(a.factory, args[0]), nil)
		},
	}
}
