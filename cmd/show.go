package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentic-research/booklist/internal/booklist"
	"github.com/agentic-research/booklist/internal/catalog"
	"github.com/agentic-research/booklist/internal/group"
	"github.com/agentic-research/booklist/internal/schema"
	"github.com/agentic-research/booklist/internal/sqlgen"
	"github.com/agentic-research/booklist/internal/style"
)

type showOptions struct {
	style     string
	mode      string
	collation string
	state     string
	offset    int64
	limit     int64
	toggle    []int64
	reveal    []int64
	expandAll bool
	collapse  bool

	author   string
	title    string
	series   string
	text     string
	loanedTo string
	shelf    int64
	books    []int64
}

func newShowCmd() *cobra.Command {
	o := &showOptions{}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Build a booklist and print its visible rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return runShow(cmd, o, log)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.style, "style", "s", style.DefaultName, "Built-in style name or path to a style file")
	f.StringVar(&o.mode, "mode", "nested", "Header generation: nested, flat or old")
	f.StringVar(&o.collation, "collation", "NOCASE", "Collation for text sort keys")
	f.StringVar(&o.state, "state", "preserved", "Initial node state: preserved, expanded or collapsed")
	f.Int64Var(&o.offset, "offset", 0, "First visible row to print")
	f.Int64Var(&o.limit, "limit", 50, "Number of rows to print")
	f.Int64SliceVar(&o.toggle, "toggle", nil, "Absolute positions to expand or collapse, in order")
	f.Int64SliceVar(&o.reveal, "reveal", nil, "Absolute positions to make visible")
	f.BoolVar(&o.expandAll, "expand-all", false, "Expand every node")
	f.BoolVar(&o.collapse, "collapse-all", false, "Collapse every node")
	f.StringVar(&o.author, "author", "", "Only books by a matching author")
	f.StringVar(&o.title, "title", "", "Only books with a matching title")
	f.StringVar(&o.series, "series", "", "Only books in a matching series")
	f.StringVar(&o.text, "text", "", "Full-text search")
	f.StringVar(&o.loanedTo, "loaned-to", "", "Only books loaned to this person")
	f.Int64Var(&o.shelf, "shelf", -1, "Only books on this bookshelf id")
	f.Int64SliceVar(&o.books, "books", nil, "Only these book ids")
	cmd.MarkFlagsMutuallyExclusive("expand-all", "collapse-all")
	return cmd
}

func runShow(cmd *cobra.Command, o *showOptions, log *zap.Logger) error {
	ctx := cmd.Context()
	st, err := style.Find(o.style)
	if err != nil {
		return err
	}
	strategy, err := sqlgen.ParseStrategy(o.mode)
	if err != nil {
		return err
	}
	preferred, err := booklist.ParsePreferred(o.state)
	if err != nil {
		return err
	}

	db, err := catalog.Open(ctx, dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	b, err := booklist.New(ctx, db, booklist.Options{
		Style:     st,
		Strategy:  strategy,
		Collation: o.collation,
		Logger:    log,
	})
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	if err := b.RequireDomain(schema.Title, schema.Books.Dot("title"), true); err != nil {
		return err
	}
	if o.author != "" {
		b.SetFilterOnAuthorName(o.author)
	}
	if o.title != "" {
		b.SetFilterOnTitle(o.title)
	}
	if o.series != "" {
		b.SetFilterOnSeriesName(o.series)
	}
	if o.text != "" {
		b.SetFilterOnText(o.text)
	}
	if o.loanedTo != "" {
		b.SetFilterOnLoanedToPerson(o.loanedTo)
	}
	b.SetFilterOnBookshelfID(o.shelf)
	if len(o.books) > 0 {
		if err := b.SetFilterOnBookIDs(o.books); err != nil {
			return err
		}
	}

	start := time.Now()
	if err := b.Build(ctx, preferred, 0); err != nil {
		return err
	}
	log.Debug("built", zap.String("style", st.Name), zap.Duration("took", time.Since(start)))

	switch {
	case o.expandAll:
		err = b.ExpandAll(ctx, true)
	case o.collapse:
		err = b.ExpandAll(ctx, false)
	}
	if err != nil {
		return err
	}
	for _, pos := range o.toggle {
		if err := b.ToggleExpandNode(ctx, pos); err != nil {
			return err
		}
	}
	for _, pos := range o.reveal {
		if err := b.EnsureAbsolutePositionVisible(ctx, pos); err != nil {
			return err
		}
	}

	rows, err := b.Page(ctx, o.offset, o.limit)
	if err != nil {
		return err
	}
	visible, err := b.PseudoCount(ctx)
	if err != nil {
		return err
	}
	books, err := b.UniqueBookCount(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "%s: %d books, %d visible rows\n", st.Name, books, visible)
	for _, r := range rows {
		printRow(out, r)
	}
	return nil
}

func printRow(out io.Writer, r booklist.Row) {
	indent := strings.Repeat("  ", r.Level-1)
	if r.IsBook() {
		_, _ = fmt.Fprintf(out, "%5d %s%v\n", r.AbsolutePosition, indent, r.Values[schema.Title.Name])
		return
	}
	marker := "+"
	if r.Expanded {
		marker = "-"
	}
	_, _ = fmt.Fprintf(out, "%5d %s%s %v (%v)\n", r.AbsolutePosition, indent, marker, label(r), r.Values[schema.BookCount.Name])
}

// label picks the column a header row is displayed by.
func label(r booklist.Row) any {
	var d *schema.Domain
	switch r.Kind {
	case group.KindAuthor:
		d = schema.AuthorFormatted
	case group.KindSeries:
		d = schema.SeriesName
	default:
		keys := r.Kind.KeyDomains()
		if len(keys) == 0 {
			return r.Kind.String()
		}
		d = keys[0]
	}
	if v := r.Values[d.Name]; v != nil {
		return v
	}
	return "(none)"
}
