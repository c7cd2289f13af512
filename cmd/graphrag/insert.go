package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/smallnest/graphrag/config"
	"github.com/smallnest/graphrag/rag"
	"github.com/smallnest/graphrag/rag/loader"
	"github.com/spf13/cobra"
)

type insertOptions struct {
	texts      []string
	id         string
	recursive  bool
	extensions []string
	enqueue    bool
}

func (a *app) insertCmd() *cobra.Command {
	var opts insertOptions
	cmd := &cobra.Command{
		Use:   "insert [file|dir]...",
		Short: "Ingest documents",
		Long: `Ingest text, markdown and HTML files, whole directories or inline text.
Documents are processed before the command returns unless --enqueue is set;
enqueued documents are processed by "graphrag resume".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := collectDocuments(cmd.Context(), args, opts, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				return fmt.Errorf("nothing to insert: pass files, directories or --text")
			}
			return a.run(cmd, func(ctx context.Context, rt *config.Runtime) error {
				insert := rt.Engine.Insert
				if opts.enqueue {
					insert = rt.Engine.Enqueue
				}
				results, err := insert(ctx, docs...)
				if perr := printResults(cmd.OutOrStdout(), results, a.flags.jsonOutput); perr != nil {
					return perr
				}
				if err != nil {
					return err
				}
				if n := failures(results); n > 0 {
					return fmt.Errorf("%d of %d documents failed", n, len(results))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVarP(&opts.texts, "text", "t", nil, "inline document text, may be repeated")
	cmd.Flags().StringVar(&opts.id, "id", "", "document id of a single inline text")
	cmd.Flags().BoolVarP(&opts.recursive, "recursive", "r", true, "descend into subdirectories")
	cmd.Flags().StringSliceVar(&opts.extensions, "ext", nil, "file extensions read from directories (default .txt,.md,.html,...)")
	cmd.Flags().BoolVar(&opts.enqueue, "enqueue", false, "store documents as pending without processing them")
	return cmd
}

func collectDocuments(ctx context.Context, paths []string, opts insertOptions, stdin io.Reader) ([]rag.Document, error) {
	var docs []rag.Document
	for _, text := range opts.texts {
		docs = append(docs, rag.Document{Content: text, Metadata: map[string]any{"source": "inline"}})
	}
	if opts.id != "" {
		if len(docs) != 1 {
			return nil, fmt.Errorf("--id needs exactly one --text")
		}
		docs[0].ID = opts.id
	}

	for _, p := range paths {
		l, err := pathLoader(p, opts, stdin)
		if err != nil {
			return nil, err
		}
		loaded, err := l.Load(ctx)
		if err != nil {
			return nil, err
		}
		docs = append(docs, loaded...)
	}
	return docs, nil
}

func pathLoader(path string, opts insertOptions, stdin io.Reader) (loader.Loader, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return loader.Static{{Content: string(data), Metadata: map[string]any{"source": "stdin"}}}, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return loader.NewFileLoader(path), nil
	}
	dirOpts := []loader.DirOption{loader.WithRecursive(opts.recursive)}
	if len(opts.extensions) > 0 {
		dirOpts = append(dirOpts, loader.WithExtensions(opts.extensions...))
	}
	return loader.NewDirLoader(path, dirOpts...), nil
}
