package main

import (
	"context"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/medinor/dashboard/internal/crud"
	"github.com/medinor/dashboard/model"
)

type listOptions struct {
	page    int
	limit   int
	sort    string
	search  string
	filters map[string]string
}

func newListCmd(global *globalOptions) *cobra.Command {
	var opts listOptions

	cmd := &cobra.Command{
		Use:   "list {clients|products|orders|admins}",
		Short: "Print one page of an entity list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, logger, err := global.client(true)
			if err != nil {
				return err
			}
			defer logger.Sync()

			h, err := client.Screen(args[0], crud.Options{
				DefaultLimit: cfg.Lists.DefaultLimit,
				MaxLimit:     cfg.Lists.MaxLimit,
				Logger:       logger,
			})
			if err != nil {
				return err
			}
			return runList(cmd.Context(), cmd.OutOrStdout(), h, opts.patch(cfg.Lists.DefaultLimit))
		},
	}

	cmd.Flags().IntVar(&opts.page, "page", 1, "Page number")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "Page size (default from config)")
	cmd.Flags().StringVar(&opts.sort, "sort", "", "Sort key, optionally suffixed with :asc or :desc")
	cmd.Flags().StringVar(&opts.search, "search", "", "Free-text search")
	cmd.Flags().StringToStringVar(&opts.filters, "filter", nil, "Filter as key=value, repeatable")
	return cmd
}

// patch converts the flags into a query change against a fresh list. Only
// values that differ from the list defaults are set, so an empty patch
// means the default query.
func (o listOptions) patch(defaultLimit int) model.QueryPatch {
	var p model.QueryPatch
	if o.page > 1 {
		p.Page = &o.page
	}
	if o.limit > 0 && o.limit != defaultLimit {
		p.Limit = &o.limit
	}
	if o.sort != "" {
		key, dir, _ := strings.Cut(o.sort, ":")
		if dir != model.SortDesc {
			dir = model.SortAsc
		}
		p.Sort = &model.Sort{Key: key, Direction: dir}
	}
	if o.search != "" {
		p.Search = &o.search
	}
	filters := make(map[string]string, len(o.filters))
	for k, v := range o.filters {
		if v != "" {
			filters[k] = v
		}
	}
	if len(filters) > 0 {
		p.Filters = filters
	}
	return p
}

func emptyPatch(p model.QueryPatch) bool {
	return p.Page == nil && p.Limit == nil && p.Sort == nil && p.Search == nil && p.Filters == nil
}

func runList(ctx context.Context, out io.Writer, h crud.Handle, p model.QueryPatch) error {
	var err error
	if emptyPatch(p) {
		err = h.Fetch(ctx)
	} else {
		err = h.ApplyPatch(ctx, p)
	}
	if err != nil {
		return err
	}
	return printJSON(out, h.View())
}
