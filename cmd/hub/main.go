// Command hub inspects chunked tensor data stored in a filesystem store.
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	hub "github.com/ashbeekim/Hub"
	"github.com/ashbeekim/Hub/chunk"
	"github.com/ashbeekim/Hub/internal/cmdutil"
	"github.com/ashbeekim/Hub/kv"
	"github.com/ashbeekim/Hub/tensor"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		cmdutil.ErrorAndExit("%v", err)
	}
}

func rootCmd() *cobra.Command {
	var dir string
	var verbose bool
	root := &cobra.Command{
		Use:   "hub",
		Short: "Inspect chunked tensor stores.",
		Long: `Inspect chunked tensor stores.

A store directory holds one or more tensors, each a sequence of n-dimensional
samples packed into fixed-capacity chunks.`,
	}
	root.PersistentFlags().StringVarP(&dir, "dir", "C", ".", "store directory")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log engine operations")

	openTensor := func(ctx context.Context, name string) (*tensor.Engine, error) {
		var opts []tensor.Option
		if verbose {
			logger, err := zap.NewDevelopment()
			if err != nil {
				return nil, err
			}
			opts = append(opts, tensor.WithLogger(logger))
		}
		return tensor.Open(ctx, kv.NewFSStore(dir), name, opts...)
	}

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the version.",
		Long:  "Print the version.",
		Run: cmdutil.RunFixedArgs(0, func([]string) error {
			fmt.Println(hub.Version)
			return nil
		}),
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the tensors in a store.",
		Long:  "List the tensors in a store.",
		Run: cmdutil.RunFixedArgs(0, func([]string) error {
			ctx := context.Background()
			names, err := listTensors(ctx, kv.NewFSStore(dir))
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		}),
	}

	stat := &cobra.Command{
		Use:   "stat tensor-name",
		Short: "Print a tensor's metadata.",
		Long:  "Print a tensor's metadata: dtype, sample count, shape bounds, chunking.",
		Run: cmdutil.RunFixedArgs(1, func(args []string) error {
			ctx := context.Background()
			e, err := openTensor(ctx, args[0])
			if err != nil {
				return err
			}
			writer := tabwriter.NewWriter(os.Stdout, 20, 1, 3, ' ', 0)
			fmt.Fprintf(writer, "NAME\t%s\n", e.Name())
			fmt.Fprintf(writer, "DTYPE\t%s\n", e.Dtype())
			fmt.Fprintf(writer, "SAMPLES\t%d\n", e.NumSamples())
			fmt.Fprintf(writer, "MIN SHAPE\t%s\n", shapeString(e.MinShape()))
			fmt.Fprintf(writer, "MAX SHAPE\t%s\n", shapeString(e.MaxShape()))
			fmt.Fprintf(writer, "CHUNK CAPACITY\t%s\n", units.BytesSize(float64(e.MaxChunkSize())))
			fmt.Fprintf(writer, "COMPRESSION\t%s\n", e.Compression())
			return writer.Flush()
		}),
	}

	chunks := &cobra.Command{
		Use:   "list-chunk tensor-name",
		Short: "List a tensor's chunks.",
		Long:  "List a tensor's chunks with their sample counts and payload sizes.",
		Run: cmdutil.RunFixedArgs(1, func(args []string) error {
			ctx := context.Background()
			store := kv.NewFSStore(dir)
			e, err := openTensor(ctx, args[0])
			if err != nil {
				return err
			}
			writer := tabwriter.NewWriter(os.Stdout, 20, 1, 3, ' ', 0)
			fmt.Fprintln(writer, "ID\tUNITS\tPAYLOAD\tSTORED\tSAMPLES")
			err = forEachChunk(ctx, store, e, func(id uint64, stored int, c *chunk.Chunk) error {
				first, last, err := e.OrdinalRange(id)
				if err != nil {
					return err
				}
				samples := strconv.Itoa(first)
				if last != first {
					samples = fmt.Sprintf("%d-%d", first, last)
				}
				fmt.Fprintf(writer, "%016x\t%d\t%s\t%s\t%s\n",
					id, c.Count(),
					units.BytesSize(float64(c.PayloadSize())),
					units.BytesSize(float64(stored)),
					samples)
				return nil
			})
			if err != nil {
				return err
			}
			return writer.Flush()
		}),
	}

	inspect := &cobra.Command{
		Use:   "inspect-sample tensor-name ordinal",
		Short: "Print a sample's shape and chunk placement.",
		Long:  "Print a sample's shape and chunk placement.",
		Run: cmdutil.RunFixedArgs(2, func(args []string) error {
			ctx := context.Background()
			ordinal, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid ordinal %q: %v", args[1], err)
			}
			e, err := openTensor(ctx, args[0])
			if err != nil {
				return err
			}
			shape, err := e.SampleShape(ordinal)
			if err != nil {
				return err
			}
			ids, err := e.ChunkIDs(ordinal)
			if err != nil {
				return err
			}
			writer := tabwriter.NewWriter(os.Stdout, 20, 1, 3, ' ', 0)
			fmt.Fprintf(writer, "ORDINAL\t%d\n", ordinal)
			fmt.Fprintf(writer, "SHAPE\t%s\n", shapeString(shape))
			switch len(ids) {
			case 0:
				fmt.Fprintf(writer, "CHUNKS\tnone (empty sample)\n")
			default:
				parts := make([]string, len(ids))
				for i, id := range ids {
					parts[i] = fmt.Sprintf("%016x", id)
				}
				fmt.Fprintf(writer, "CHUNKS\t%s\n", strings.Join(parts, ", "))
			}
			return writer.Flush()
		}),
	}

	root.AddCommand(version, list, stat, chunks, inspect)
	return root
}

// listTensors finds the tensor names in a store by their metadata keys.
func listTensors(ctx context.Context, store kv.Store) ([]string, error) {
	var names []string
	err := kv.ForEachKey(ctx, store, kv.Span{}, func(key []byte) error {
		if name, ok := bytes.CutSuffix(key, []byte("/meta.json")); ok {
			names = append(names, string(name))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func forEachChunk(ctx context.Context, store kv.Store, e *tensor.Engine, cb func(id uint64, stored int, c *chunk.Chunk) error) error {
	prefix := []byte(e.Name() + "/chunks/")
	buf := make([]byte, e.MaxChunkSize()*4)
	return kv.ForEachKey(ctx, store, kv.SpanFromPrefix(prefix), func(key []byte) error {
		id, err := strconv.ParseUint(string(bytes.TrimPrefix(key, prefix)), 16, 64)
		if err != nil {
			return err
		}
		n, err := store.Get(ctx, key, buf)
		if err != nil {
			return err
		}
		c, err := chunk.FromBytes(e.MaxChunkSize(), buf[:n])
		if err != nil {
			return err
		}
		return cb(id, n, c)
	})
}

func shapeString(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
