// boardctl is a command-line client for boardstore
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/nainya/boardstore/internal/logger"
	"github.com/nainya/boardstore/pkg/board"
	"github.com/nainya/boardstore/pkg/client"
	"github.com/nainya/boardstore/pkg/rpc"
	"github.com/nainya/boardstore/pkg/session"
	"github.com/nainya/boardstore/pkg/store"
)

const usage = `usage: boardctl [flags] <command> [args]

commands:
  create <name>               create a whiteboard
  list                        list whiteboards
  versions <id>               show version history
  restore <id> <index>        make a past version current
  export <id> [index] <file>  write a PDF of the current or a past snapshot
  draw <id> <strokes.json>    replay strokes onto a whiteboard

flags:
`

type options struct {
	addr     string
	grpcAddr string
	user     string
	tenant   string
	timeout  time.Duration
	verbose  bool
}

func main() {
	var opts options
	fs := flag.NewFlagSet("boardctl", flag.ExitOnError)
	fs.StringVar(&opts.addr, "addr", envOr("BOARDSTORE_URL", "http://localhost:8080"), "HTTP API base URL")
	fs.StringVar(&opts.grpcAddr, "grpc", os.Getenv("BOARDSTORE_GRPC"), "gRPC address; when set, store calls use gRPC")
	fs.StringVar(&opts.user, "user", os.Getenv("USER"), "Author recorded on new versions")
	fs.StringVar(&opts.tenant, "tenant", "", "Tenant owning new whiteboards")
	fs.DurationVar(&opts.timeout, "timeout", time.Minute, "Overall command timeout")
	fs.BoolVar(&opts.verbose, "v", false, "Log commit progress")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[1:])

	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	if err := run(opts, fs.Args(), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "boardctl: %v\n", err)
		if errors.Is(err, errUsage) {
			fs.Usage()
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var errUsage = errors.New("bad arguments")

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func run(opts options, args []string, out io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()
	if opts.user != "" {
		ctx = board.WithAuthor(ctx, opts.user)
	}
	if opts.tenant != "" {
		ctx = board.WithTenant(ctx, opts.tenant)
	}

	httpClient := client.New(opts.addr, nil)
	var st store.Store = httpClient
	if opts.grpcAddr != "" {
		conn, err := grpc.NewClient(opts.grpcAddr,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(100*1024*1024)),
		)
		if err != nil {
			return fmt.Errorf("dial %s: %w", opts.grpcAddr, err)
		}
		defer conn.Close()
		st = rpc.NewClient(conn)
	}

	cmd, args := args[0], args[1:]
	switch cmd {
	case "create":
		if len(args) != 1 {
			return errUsage
		}
		wb, err := st.Create(ctx, args[0], opts.tenant)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, wb.ID)

	case "list":
		list, err := st.List(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME")
		for _, s := range list {
			fmt.Fprintf(tw, "%s\t%s\n", s.ID, s.Name)
		}
		return tw.Flush()

	case "versions":
		if len(args) != 1 {
			return errUsage
		}
		versions, err := st.ListVersions(ctx, args[0])
		if err != nil {
			return err
		}
		printVersions(out, versions)

	case "restore":
		if len(args) != 2 {
			return errUsage
		}
		index, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("%w: index %q", errUsage, args[1])
		}
		v, err := st.Restore(ctx, args[0], index)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "version %d restored as %d\n", index, v.Index)

	case "export":
		version := -1
		switch len(args) {
		case 2:
		case 3:
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("%w: index %q", errUsage, args[1])
			}
			version = n
		default:
			return errUsage
		}
		pdf, err := httpClient.ExportPDF(ctx, args[0], version)
		if err != nil {
			return err
		}
		return os.WriteFile(args[len(args)-1], pdf, 0o644)

	case "draw":
		if len(args) != 2 {
			return errUsage
		}
		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()
		script, err := parseScript(f)
		if err != nil {
			return err
		}

		sopts := session.DefaultOptions()
		if opts.verbose {
			l := logger.NewLogger(logger.Config{Level: "debug", Pretty: true, Output: os.Stderr})
			sopts.Logger = *l.GetZerolog()
			sopts.Controller.Logger = sopts.Logger
		}
		n, err := draw(ctx, st, args[0], script, sopts, out)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d strokes committed\n", n)

	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
	return nil
}

func printVersions(out io.Writer, versions []board.SnapshotVersion) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tCREATED\tAUTHOR\tRESTORED FROM\tBYTES")
	for _, v := range versions {
		from := "-"
		if v.RestoredFrom != nil {
			from = strconv.Itoa(*v.RestoredFrom)
		}
		author := v.Author
		if author == "" {
			author = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\n", v.Index, v.CreatedAt.Format(time.RFC3339), author, from, len(v.Data))
	}
	tw.Flush()
}
