// Package main provides the chunked graph CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dlbrittain/chunkedgraph/internal/chunkedgraph"
	"github.com/dlbrittain/chunkedgraph/internal/config"
	"github.com/dlbrittain/chunkedgraph/internal/hierarchy"
	"github.com/dlbrittain/chunkedgraph/internal/ids"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "chunkedgraph",
		Short: "Chunked graph - hierarchical segmentation proofreading service",
		Long: `chunkedgraph maintains a hierarchical, temporally versioned partitioning
of a 3D voxel volume and exposes merge/split editing, undo/redo, and
lineage queries over it.`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("chunkedgraph v%s\n", version)
		},
	})

	rootCmd.PersistentFlags().String("data-dir", "", "Badger data directory (empty = use the configured data dir)")
	rootCmd.PersistentFlags().String("config", "", "YAML config file (env vars still take precedence)")
	rootCmd.PersistentFlags().String("table", "default", "Dataset table name")
	rootCmd.PersistentFlags().Int("max-layer", 0, "Maximum hierarchy layer (0 = ids.MaxLayer)")

	rootCmd.AddCommand(
		mergeCmd(),
		splitCmd(),
		splitPreviewCmd(),
		getRootCmd(),
		getRootsCmd(),
		childrenCmd(),
		leavesCmd(),
		subgraphCmd(),
		undoCmd(),
		redoCmd(),
		rollbackCmd(),
		changeLogCmd(),
		lineageGraphCmd(),
		pastIDMappingCmd(),
		lastEditCmd(),
		isLatestRootsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openGraph(cmd *cobra.Command) (*chunkedgraph.Graph, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	configPath, _ := cmd.Flags().GetString("config")
	table, _ := cmd.Flags().GetString("table")
	maxLayer, _ := cmd.Flags().GetInt("max-layer")

	cfg := config.LoadFromEnvOrFile(configPath)
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if cfg.DataDir == "" {
		cfg.InMemory = true
	}

	return chunkedgraph.Open(chunkedgraph.Options{
		Table:    table,
		MaxLayer: maxLayer,
		Config:   cfg,
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(s string) (ids.ID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid node id %q: %w", s, err)
	}
	return ids.ID(n), nil
}

func parseIDList(s string) ([]ids.ID, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]ids.ID, 0, len(parts))
	for _, p := range parts {
		id, err := parseID(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func mergeCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "merge <supervoxel_u> <supervoxel_v>",
		Short: "Merge two supervoxels by adding an atomic edge",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := openGraph(cmd)
			if err != nil {
				return err
			}
			defer g.Close()

			u, err := parseID(args[0])
			if err != nil {
				return err
			}
			v, err := parseID(args[1])
			if err != nil {
				return err
			}
			result, err := g.Merge(context.Background(), user, u, v)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&user, "user", "cli", "Acting user")
	return cmd
}

func splitCmd() *cobra.Command {
	var user, sourcesFlag, sinksFlag, edgesFlag string
	var useMincut bool
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Split a root by removing a computed or explicit cut",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := openGraph(cmd)
			if err != nil {
				return err
			}
			defer g.Close()

			sources, err := parseIDList(sourcesFlag)
			if err != nil {
				return err
			}
			sinks, err := parseIDList(sinksFlag)
			if err != nil {
				return err
			}
			explicit, err := parseEdgeList(edgesFlag)
			if err != nil {
				return err
			}
			result, err := g.Split(context.Background(), user, sources, sinks, explicit, useMincut)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&user, "user", "cli", "Acting user")
	cmd.Flags().StringVar(&sourcesFlag, "sources", "", "Comma-separated source supervoxel ids")
	cmd.Flags().StringVar(&sinksFlag, "sinks", "", "Comma-separated sink supervoxel ids")
	cmd.Flags().StringVar(&edgesFlag, "edges", "", "Comma-separated explicit edges u1-v1,u2-v2 (used when --mincut=false)")
	cmd.Flags().BoolVar(&useMincut, "mincut", true, "Compute the cut via the mincut engine instead of --edges")
	return cmd
}

func parseEdgeList(s string) ([][2]ids.ID, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([][2]ids.ID, 0, len(parts))
	for _, p := range parts {
		pair := strings.SplitN(strings.TrimSpace(p), "-", 2)
		if len(pair) != 2 {
			return nil, fmt.Errorf("invalid edge %q, want u-v", p)
		}
		u, err := parseID(pair[0])
		if err != nil {
			return nil, err
		}
		v, err := parseID(pair[1])
		if err != nil {
			return nil, err
		}
		out = append(out, [2]ids.ID{u, v})
	}
	return out, nil
}

func splitPreviewCmd() *cobra.Command {
	var rootArg, sourcesFlag, sinksFlag, bboxFlag string
	cmd := &cobra.Command{
		Use:   "split-preview",
		Short: "Preview a split's connected components without committing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := openGraph(cmd)
			if err != nil {
				return err
			}
			defer g.Close()

			root, err := parseID(rootArg)
			if err != nil {
				return err
			}
			sources, err := parseIDList(sourcesFlag)
			if err != nil {
				return err
			}
			sinks, err := parseIDList(sinksFlag)
			if err != nil {
				return err
			}
			bbox, err := hierarchy.ParseBBox(bboxFlag)
			if err != nil {
				return err
			}
			result, err := g.SplitPreview(context.Background(), root, 0, bbox, sources, sinks)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&rootArg, "root", "", "Root id to preview the split within")
	cmd.Flags().StringVar(&sourcesFlag, "sources", "", "Comma-separated source supervoxel ids")
	cmd.Flags().StringVar(&sinksFlag, "sinks", "", "Comma-separated sink supervoxel ids")
	cmd.Flags().StringVar(&bboxFlag, "bbox", "", "Bounding box x0-x1_y0-y1_z0-z1")
	_ = cmd.MarkFlagRequired("root")
	_ = cmd.MarkFlagRequired("bbox")
	return cmd
}

func getRootCmd() *cobra.Command {
	var timestamp int64
	var stopLayer int
	cmd := &cobra.Command{
		Use:   "get-root <supervoxel>",
		Short: "Resolve a supervoxel's root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := openGraph(cmd)
			if err != nil {
				return err
			}
			defer g.Close()
			sv, err := parseID(args[0])
			if err != nil {
				return err
			}
			root, err := g.GetRoot(context.Background(), sv, timestamp, stopLayer)
			if err != nil {
				return err
			}
			return printJSON(map[string]ids.ID{"root_id": root})
		},
	}
	cmd.Flags().Int64Var(&timestamp, "timestamp", 0, "Unix timestamp (0 = now)")
	cmd.Flags().IntVar(&stopLayer, "stop-layer", 0, "Stop ascending at this layer (0 = root)")
	return cmd
}

func getRootsCmd() *cobra.Command {
	var timestamp int64
	var assertRoots bool
	cmd := &cobra.Command{
		Use:   "get-roots <supervoxel_ids>",
		Short: "Resolve many supervoxels' roots (comma-separated)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := openGraph(cmd)
			if err != nil {
				return err
			}
			defer g.Close()
			svs, err := parseIDList(args[0])
			if err != nil {
				return err
			}
			roots, err := g.GetRoots(context.Background(), svs, timestamp, assertRoots)
			if err != nil {
				return err
			}
			return printJSON(roots)
		},
	}
	cmd.Flags().Int64Var(&timestamp, "timestamp", 0, "Unix timestamp (0 = now)")
	cmd.Flags().BoolVar(&assertRoots, "assert-roots", false, "Error if any resolved id is not at the top layer")
	return cmd
}

func childrenCmd() *cobra.Command {
	var timestamp int64
	cmd := &cobra.Command{
		Use:   "children <node>",
		Short: "List a node's immediate children",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := openGraph(cmd)
			if err != nil {
				return err
			}
			defer g.Close()
			node, err := parseID(args[0])
			if err != nil {
				return err
			}
			children, err := g.Children(context.Background(), node, timestamp)
			if err != nil {
				return err
			}
			return printJSON(children)
		},
	}
	cmd.Flags().Int64Var(&timestamp, "timestamp", 0, "Unix timestamp (0 = now)")
	return cmd
}

func leavesCmd() *cobra.Command {
	var timestamp int64
	var bboxFlag string
	cmd := &cobra.Command{
		Use:   "leaves <root>",
		Short: "List a root's supervoxels, optionally within a bounding box",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := openGraph(cmd)
			if err != nil {
				return err
			}
			defer g.Close()
			root, err := parseID(args[0])
			if err != nil {
				return err
			}
			var bbox *hierarchy.BBox
			if bboxFlag != "" {
				parsed, err := hierarchy.ParseBBox(bboxFlag)
				if err != nil {
					return err
				}
				bbox = &parsed
			}
			leaves, err := g.Leaves(context.Background(), root, timestamp, bbox)
			if err != nil {
				return err
			}
			return printJSON(leaves)
		},
	}
	cmd.Flags().Int64Var(&timestamp, "timestamp", 0, "Unix timestamp (0 = now)")
	cmd.Flags().StringVar(&bboxFlag, "bbox", "", "Optional bounding box x0-x1_y0-y1_z0-z1")
	return cmd
}

func subgraphCmd() *cobra.Command {
	var timestamp int64
	var bboxFlag string
	cmd := &cobra.Command{
		Use:   "subgraph <root>",
		Short: "Return every node by layer and atomic edge under a root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := openGraph(cmd)
			if err != nil {
				return err
			}
			defer g.Close()
			root, err := parseID(args[0])
			if err != nil {
				return err
			}
			var bbox *hierarchy.BBox
			if bboxFlag != "" {
				parsed, err := hierarchy.ParseBBox(bboxFlag)
				if err != nil {
					return err
				}
				bbox = &parsed
			}
			nodes, edges, affs, err := g.Subgraph(context.Background(), root, timestamp, bbox)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"nodes_by_layer": nodes,
				"edges":          edges,
				"affinities":     affs,
			})
		},
	}
	cmd.Flags().Int64Var(&timestamp, "timestamp", 0, "Unix timestamp (0 = now)")
	cmd.Flags().StringVar(&bboxFlag, "bbox", "", "Optional bounding box x0-x1_y0-y1_z0-z1")
	return cmd
}

func undoCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "undo <operation_id>",
		Short: "Undo a previously committed operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := openGraph(cmd)
			if err != nil {
				return err
			}
			defer g.Close()
			opID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid operation id %q: %w", args[0], err)
			}
			result, err := g.Undo(context.Background(), user, opID)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&user, "user", "cli", "Acting user")
	return cmd
}

func redoCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "redo <operation_id>",
		Short: "Reapply a previously undone operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := openGraph(cmd)
			if err != nil {
				return err
			}
			defer g.Close()
			opID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid operation id %q: %w", args[0], err)
			}
			result, err := g.Redo(context.Background(), user, opID)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&user, "user", "cli", "Acting user")
	return cmd
}

func rollbackCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "rollback <target_user>",
		Short: "Undo every operation committed by target_user, most recent first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := openGraph(cmd)
			if err != nil {
				return err
			}
			defer g.Close()
			attempted, err := g.Rollback(context.Background(), actor, args[0])
			if err != nil {
				return err
			}
			return printJSON(attempted)
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "cli", "User performing the rollback")
	return cmd
}

func changeLogCmd() *cobra.Command {
	var filtered bool
	cmd := &cobra.Command{
		Use:   "change-log <root_ids>",
		Short: "Per-root tabular changelog (comma-separated root ids)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := openGraph(cmd)
			if err != nil {
				return err
			}
			defer g.Close()
			roots, err := parseIDList(args[0])
			if err != nil {
				return err
			}
			rows, err := g.ChangeLog(context.Background(), roots, filtered)
			if err != nil {
				return err
			}
			return printJSON(rows)
		},
	}
	cmd.Flags().BoolVar(&filtered, "filtered", false, "Exclude undo/redo meta-operations")
	return cmd
}

func lineageGraphCmd() *cobra.Command {
	var pastT, futureT int64
	cmd := &cobra.Command{
		Use:   "lineage-graph <root_ids>",
		Short: "DAG of roots reachable from the given roots (comma-separated)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := openGraph(cmd)
			if err != nil {
				return err
			}
			defer g.Close()
			roots, err := parseIDList(args[0])
			if err != nil {
				return err
			}
			graph, err := g.LineageGraph(context.Background(), roots, pastT, futureT)
			if err != nil {
				return err
			}
			return printJSON(graph)
		},
	}
	cmd.Flags().Int64Var(&pastT, "past", 0, "Lower bound timestamp")
	cmd.Flags().Int64Var(&futureT, "future", 0, "Upper bound timestamp")
	return cmd
}

func pastIDMappingCmd() *cobra.Command {
	var pastT, futureT int64
	cmd := &cobra.Command{
		Use:   "past-id-mapping <root_ids>",
		Short: "Ancestor/descendant root sets for the given roots (comma-separated)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := openGraph(cmd)
			if err != nil {
				return err
			}
			defer g.Close()
			roots, err := parseIDList(args[0])
			if err != nil {
				return err
			}
			mapping, err := g.PastIDMapping(context.Background(), roots, pastT, futureT)
			if err != nil {
				return err
			}
			return printJSON(mapping)
		},
	}
	cmd.Flags().Int64Var(&pastT, "past", 0, "Lower bound timestamp")
	cmd.Flags().Int64Var(&futureT, "future", 0, "Upper bound timestamp")
	return cmd
}

func lastEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "last-edit <root>",
		Short: "Max timestamp of any operation touching root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := openGraph(cmd)
			if err != nil {
				return err
			}
			defer g.Close()
			root, err := parseID(args[0])
			if err != nil {
				return err
			}
			ts, err := g.LastEdit(context.Background(), root)
			if err != nil {
				return err
			}
			return printJSON(map[string]int64{"last_edit_timestamp": ts})
		},
	}
	return cmd
}

func isLatestRootsCmd() *cobra.Command {
	var atTime int64
	cmd := &cobra.Command{
		Use:   "is-latest-roots <root_ids>",
		Short: "Report whether each root is still current as of a timestamp",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := openGraph(cmd)
			if err != nil {
				return err
			}
			defer g.Close()
			roots, err := parseIDList(args[0])
			if err != nil {
				return err
			}
			result, err := g.IsLatestRoots(context.Background(), roots, atTime)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().Int64Var(&atTime, "at", 0, "Unix timestamp (0 = now)")
	return cmd
}
