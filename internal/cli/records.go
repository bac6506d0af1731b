package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/redrec/internal/record"
)

// CollectionInfo describes one configured collection.
type CollectionInfo struct {
	Name         string   `json:"name"`
	PrimaryKeys  []string `json:"primary_keys"`
	LookupKeys   []string `json:"lookup_keys"`
	AutoID       bool     `json:"auto_id"`
	PrimaryIndex string   `json:"primary_index"`
	LookupIndex  string   `json:"lookup_index"`
}

// NewCollectionsCommand lists configured collections and their index keys.
func NewCollectionsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "List configured collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session) error {
				infos := make([]CollectionInfo, 0, len(s.cfg.Collections))
				var text strings.Builder
				for _, name := range s.cfg.CollectionNames() {
					c, err := s.collection(name, nil)
					if err != nil {
						return err
					}
					info := CollectionInfo{
						Name:         c.Name(),
						PrimaryKeys:  append([]string{}, c.PrimaryKeys()...),
						LookupKeys:   append([]string{}, c.LookupKeys()...),
						AutoID:       c.AutoID(),
						PrimaryIndex: c.PrimaryIndexKey(),
						LookupIndex:  c.LookupIndexKey(),
					}
					infos = append(infos, info)

					pk := strings.Join(info.PrimaryKeys, ",")
					if info.AutoID {
						pk = "(auto id)"
					}
					fmt.Fprintf(&text, "%s\tpk=%s\tlookup=%s\tindexes=%s %s\n",
						info.Name, pk, strings.Join(info.LookupKeys, ","), info.PrimaryIndex, info.LookupIndex)
				}
				if len(infos) == 0 {
					text.WriteString("No collections configured.\n")
				}
				return s.out.Success(infos, text.String())
			})
		},
	}
}

// CreateOptions holds flags for the create command.
type CreateOptions struct {
	*RootOptions
	Async bool
}

// NewCreateCommand creates one record from key=value arguments.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create <collection> key=value...",
		Short: "Create a record and print its id",
		Long: `Create a record from key=value pairs. Values may contain '='; only the
first one separates the key.

Examples:
  redrec create users email=ann@example.com name=Ann
  redrec create sessions org=acme user=bob token=t1 --async`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := parseFields(args[1:])
			if err != nil {
				return err
			}
			return withSession(cmd, opts.RootOptions, func(s *session) error {
				var mode *record.WriteMode
				if opts.Async {
					async := record.WriteAsync
					mode = &async
				}
				c, err := s.collection(args[0], mode)
				if err != nil {
					return err
				}

				created, err := c.Create(cmd.Context(), input)
				if err != nil {
					return recordError("create", err)
				}
				if opts.Async {
					// Surface the async outcome before exiting.
					if err := c.Flush(cmd.Context()); err != nil {
						return WrapExitError(ExitCommandError, "error", "flush", err)
					}
					if err := created.Wait(cmd.Context()); err != nil {
						return recordError("create", err)
					}
				}
				return s.out.Success(map[string]string{
					record.FieldID:        created.ID,
					record.FieldTimestamp: created.Timestamp,
				}, created.ID+"\n")
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Async, "async", false, "write without waiting for the store (errors are logged)")
	return cmd
}

// parseFields turns key=value arguments into create input.
func parseFields(args []string) (map[string]string, error) {
	fields := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, NewExitError(ExitCommandError, "usage",
				fmt.Sprintf("invalid field %q: want key=value", arg))
		}
		if _, dup := fields[k]; dup {
			return nil, NewExitError(ExitCommandError, "usage",
				fmt.Sprintf("field %q given twice", k))
		}
		fields[k] = v
	}
	return fields, nil
}

// NewGetCommand prints the record with the given id.
func NewGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <collection> <id>",
		Short: "Print a record by id (exit 1 when not found)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session) error {
				c, err := s.collection(args[0], nil)
				if err != nil {
					return err
				}
				rec, found, err := c.FindByID(cmd.Context(), args[1])
				if err != nil {
					return recordError("get", err)
				}
				if !found {
					return notFound(args[0], "id "+args[1])
				}
				return s.out.Success(rec, formatRecords([]record.Record{rec}))
			})
		},
	}
}

// LookupOptions holds flags for the lookup command.
type LookupOptions struct {
	*RootOptions
	All     bool
	Limit   int64
	Reverse bool
}

// NewLookupCommand queries the lookup index.
func NewLookupCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LookupOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "lookup <collection> <field> <value>",
		Short: "Find records by a lookup field",
		Long: `Print the most recent record whose field was created with value
(exit 1 when there is none). With --all, --limit or --reverse every match
is printed, oldest first unless --reverse is set.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Limit < 0 {
				return NewExitError(ExitCommandError, "usage", "--limit must not be negative")
			}
			return withSession(cmd, opts.RootOptions, func(s *session) error {
				c, err := s.collection(args[0], nil)
				if err != nil {
					return err
				}
				field, value := args[1], args[2]

				if !opts.All && opts.Limit == 0 && !opts.Reverse {
					rec, found, err := c.FindOneByLookupKey(cmd.Context(), field, value)
					if err != nil {
						return recordError("lookup", err)
					}
					if !found {
						return notFound(args[0], field+"="+value)
					}
					return s.out.Success(rec, formatRecords([]record.Record{rec}))
				}

				recs, err := c.FindByLookupKey(cmd.Context(), field, value, record.LookupOptions{
					Limit:   opts.Limit,
					Reverse: opts.Reverse,
				})
				if err != nil {
					return recordError("lookup", err)
				}
				return s.out.Success(recs, formatRecords(recs))
			})
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "print every matching record")
	cmd.Flags().Int64Var(&opts.Limit, "limit", 0, "maximum number of records (implies --all)")
	cmd.Flags().BoolVar(&opts.Reverse, "reverse", false, "newest first (implies --all)")
	return cmd
}

// NewListCommand prints every record of a collection.
func NewListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <collection>",
		Short: "Print every record in creation order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session) error {
				c, err := s.collection(args[0], nil)
				if err != nil {
					return err
				}
				recs, err := c.FindAll(cmd.Context())
				if err != nil {
					return recordError("list", err)
				}
				return s.out.Success(recs, formatRecords(recs))
			})
		},
	}
}

// PurgeOptions holds flags for the purge command.
type PurgeOptions struct {
	*RootOptions
	Yes bool
}

// NewPurgeCommand deletes every record of a collection.
func NewPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PurgeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "purge <collection>",
		Short: "Delete every record and both indexes of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !opts.Yes {
				return NewExitError(ExitCommandError, "usage", "purge deletes every record; pass --yes to confirm")
			}
			return withSession(cmd, opts.RootOptions, func(s *session) error {
				c, err := s.collection(args[0], nil)
				if err != nil {
					return err
				}
				n, err := c.DeleteAll(cmd.Context())
				if err != nil {
					return recordError("purge", err)
				}
				return s.out.Success(map[string]int{"deleted": n},
					fmt.Sprintf("Deleted %d records from %s.\n", n, c.Name()))
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Yes, "yes", false, "confirm deletion")
	return cmd
}

func notFound(collection, what string) error {
	return NewExitError(ExitFailure, "not_found", fmt.Sprintf("%s: no record with %s", collection, what))
}

// formatRecords renders records as key=value lines, id and timestamp
// first, with a blank line between records.
func formatRecords(recs []record.Record) string {
	if len(recs) == 0 {
		return "No records.\n"
	}
	var b strings.Builder
	for i, rec := range recs {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s=%s\n", record.FieldID, rec.ID())
		fmt.Fprintf(&b, "%s=%s\n", record.FieldTimestamp, rec[record.FieldTimestamp])
		keys := make([]string, 0, len(rec))
		for k := range rec {
			if k != record.FieldID && k != record.FieldTimestamp {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s=%s\n", k, rec[k])
		}
	}
	return b.String()
}
