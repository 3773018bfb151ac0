// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/ttlprefls/services/ttlpref/index"
)

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index <file>",
		Short: "Index a Turtle file and list resources without a label",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			idx, err := index.Build(string(data),
				index.WithLabelPredicate(cfg.Labels.Predicate),
				index.WithLanguage(cfg.Labels.Language),
			)
			if err != nil {
				return err
			}
			printIndex(cmd.OutOrStdout(), args[0], idx)
			return nil
		},
	}
}

func printIndex(w io.Writer, name string, idx *index.DocumentIndex) {
	st := idx.Stats()
	fmt.Fprintf(w, "%s: %d resources, %d labeled, %d unlabeled, %d prefixes, %d spans\n",
		name, st.URIs, st.Labels, st.Unlabeled, st.Prefixes, st.Spans)
	for _, iri := range idx.Unlabeled() {
		if pos, ok := idx.FirstPos[iri]; ok {
			fmt.Fprintf(w, "%d:%d\t%s\n", pos.Line+1, pos.Character+1, idx.Pretty(iri))
			continue
		}
		fmt.Fprintf(w, "-\t%s\n", idx.Pretty(iri))
	}
}

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <namespace>",
		Short: "Fetch a namespace and print its labels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns := args[0]
			res := newResolver(cfg, logger)
			ch, started := res.RequestResolution(ns)
			if !started {
				return fmt.Errorf("namespace %q cannot be resolved", ns)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Resolver.FetchTimeout.Std()+cfg.Resolver.FetchTimeout.Std())
			defer cancel()
			select {
			case result := <-ch:
				if result.Err != nil {
					return fmt.Errorf("resolve %s: %w", ns, result.Err)
				}
				printLabels(cmd.OutOrStdout(), result.Labels)
				return nil
			case <-ctx.Done():
				return fmt.Errorf("resolve %s: %w", ns, ctx.Err())
			}
		},
	}
}

func printLabels(w io.Writer, labels map[string]string) {
	iris := make([]string, 0, len(labels))
	for iri := range labels {
		iris = append(iris, iri)
	}
	sort.Strings(iris)
	for _, iri := range iris {
		fmt.Fprintf(w, "%s\t%s\n", iri, labels[iri])
	}
}
