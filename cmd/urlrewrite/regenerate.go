package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/utafrali/urlrewrite/internal/domain"
	apperrors "github.com/utafrali/urlrewrite/pkg/errors"
)

type regenerateFlags struct {
	storeID         int64
	entityType      string
	saveOldURLs     bool
	noReindex       bool
	noProgress      bool
	noCacheClean    bool
	noCacheFlush    bool
	noRegenURLKey   bool
	categoryID      int64
	productID       int64
	categoriesRange string
	productsRange   string
	checkUseCatURL  bool
	purge           bool
}

func (f *regenerateFlags) register(fs *pflag.FlagSet) {
	fs.Int64VarP(&f.storeID, "store-id", "s", 0, "store to regenerate (default: every store)")
	fs.StringVarP(&f.entityType, "entity-type", "e", domain.ScopeAll, "entity type to regenerate: all, product or category")
	fs.BoolVar(&f.saveOldURLs, "save-old-urls", false, "keep previous urls as permanent redirects")
	fs.BoolVar(&f.noReindex, "no-reindex", false, "do not publish the reindex event")
	fs.BoolVar(&f.noProgress, "no-progress", false, "do not show progress")
	fs.BoolVar(&f.noCacheClean, "no-cache-clean", false, "do not clean the storefront cache")
	fs.BoolVar(&f.noCacheFlush, "no-cache-flush", false, "do not flush the storefront cache")
	fs.BoolVar(&f.noRegenURLKey, "no-regen-url-key", false, "keep existing url keys")
	fs.Int64Var(&f.categoryID, "category-id", 0, "regenerate one category")
	fs.Int64Var(&f.productID, "product-id", 0, "regenerate one product")
	fs.StringVar(&f.categoriesRange, "categories-range", "", "regenerate a category id range, e.g. 101-152")
	fs.StringVar(&f.productsRange, "products-range", "", "regenerate a product id range, e.g. 101-152")
	fs.BoolVar(&f.checkUseCatURL, "check-use-category-in-product-url", true,
		"cascade into products only when the store uses category paths in product urls")
	fs.BoolVar(&f.purge, "purge", false, "delete every category and product rewrite of the selected stores first")
}

// options turns the parsed flags and the optional positional store id into
// run options. Only flags set on the command line restrict the selection.
func (f *regenerateFlags) options(fs *pflag.FlagSet, args []string) (domain.RegenerationOptions, error) {
	opts := domain.DefaultOptions()

	if fs.Changed("store-id") {
		opts.StoreID = &f.storeID
	}
	if len(args) == 1 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return opts, apperrors.InvalidInputf("store id %q is not a number", args[0])
		}
		if opts.StoreID != nil && *opts.StoreID != id {
			return opts, apperrors.InvalidInput("store id given both as argument and as --store-id")
		}
		opts.StoreID = &id
	}

	opts.EntityType = f.entityType
	if fs.Changed("category-id") {
		opts.CategoryID = &f.categoryID
	}
	if fs.Changed("product-id") {
		opts.ProductID = &f.productID
	}
	opts.CategoriesRange = f.categoriesRange
	opts.ProductsRange = f.productsRange

	opts.SaveOldURLs = f.saveOldURLs
	opts.NoRegenURLKey = f.noRegenURLKey
	opts.CheckUseCategoryInProductURL = f.checkUseCatURL
	opts.ShowProgress = !f.noProgress
	opts.RunReindex = !f.noReindex
	opts.RunCacheClean = !f.noCacheClean
	opts.RunCacheFlush = !f.noCacheFlush
	opts.Purge = f.purge

	return opts, opts.Validate()
}

func newRegenerateCmd() *cobra.Command {
	flags := &regenerateFlags{}
	cmd := &cobra.Command{
		Use:   "regenerate [storeId]",
		Short: "Regenerate category and product url rewrites",
		Long: `Regenerates url keys, url paths and url rewrites of categories and
products. Without a store every store is regenerated. Problems with single
entities are listed at the end of the run and do not stop it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Rejected before anything connects or writes.
			opts, err := flags.options(cmd.Flags(), args)
			if err != nil {
				return err
			}

			var progressOut *os.File
			if opts.ShowProgress {
				progressOut = os.Stdout
			}
			application, log, err := setup(cmd.Context(), progressOut)
			if err != nil {
				return err
			}
			defer func() {
				if err := application.Shutdown(); err != nil {
					log.Error("shutdown failed", slog.String("error", err.Error()))
				}
			}()

			report, err := application.Regenerate(cmd.Context(), opts)
			if report != nil {
				printReport(cmd.OutOrStdout(), report)
			}
			return err
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

// printReport writes the per-store summary followed by one block with every
// diagnostic of the run.
func printReport(w io.Writer, report *domain.RunReport) {
	if report.Purged > 0 {
		fmt.Fprintf(w, "Purged %s rewrites\n", humanize.Comma(report.Purged))
	}
	for _, s := range report.Stores {
		fmt.Fprintf(w, "Store %d (%s): %s categories, %s products, %s rewrites saved, %s renamed, %s failed\n",
			s.Store.ID, s.Store.Code,
			humanize.Comma(int64(s.Stats.Categories)),
			humanize.Comma(int64(s.Stats.Products)),
			humanize.Comma(int64(s.Stats.RewritesSaved)),
			humanize.Comma(int64(s.Stats.Collisions)),
			humanize.Comma(int64(s.Stats.Failed)),
		)
	}

	var messages []string
	for _, s := range report.Stores {
		messages = append(messages, s.Stats.Diagnostics.Messages()...)
	}
	messages = append(messages, report.Diagnostics.Messages()...)
	if len(messages) == 0 {
		fmt.Fprintln(w, "Done.")
		return
	}

	fmt.Fprintf(w, "\n%d problem(s) need attention:\n", len(messages))
	for _, m := range messages {
		fmt.Fprintf(w, "  - %s\n", m)
	}
}
