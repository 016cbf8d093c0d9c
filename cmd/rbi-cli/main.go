package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"rbi/internal/store"
	"rbi/internal/strategy"
	"rbi/internal/strategy/builtins"
)

const version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: rbi-cli <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version      Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  strategies   List built-in strategies and their default parameters\n")
		fmt.Fprintf(os.Stderr, "  symbols      List symbols in a bar store (-source, -path)\n")
		fmt.Fprintf(os.Stderr, "\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("rbi-cli %s\n", version)

	case "strategies":
		r := strategy.NewRegistry()
		builtins.Register(r)
		for _, name := range r.List() {
			d, _ := r.Get(name)
			fmt.Printf("%s: %s\n", name, d.Description)
			for _, k := range d.Defaults.Keys() {
				fmt.Printf("    %-16s %g\n", k, d.Defaults[k])
			}
		}

	case "symbols":
		fs := flag.NewFlagSet("symbols", flag.ExitOnError)
		source := fs.String("source", store.KindParquet, "store kind: parquet, sqlite or clickhouse")
		path := fs.String("path", "", "store path")
		addr := fs.String("addr", "127.0.0.1:9000", "clickhouse address")
		fs.Parse(os.Args[2:])

		ctx := context.Background()
		st, err := store.Open(ctx, store.Options{
			Kind:       *source,
			Path:       *path,
			ClickHouse: store.ClickHouseOptions{Addr: *addr},
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "open store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()
		syms, err := st.ListSymbols(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "symbols: %v\n", err)
			os.Exit(1)
		}
		for _, s := range syms {
			fmt.Println(s)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}
}
