package client

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewKBCommand constructs the `kb` command group and subcommands.
func NewKBCommand(baseURL BaseURLFunc) *cobra.Command {
	kbCmd := &cobra.Command{Use: "kb", Short: "Knowledge store operations"}
	kbCmd.PersistentFlags().String("server", "", "Server base URL (default $KEVA_HTTP or http://127.0.0.1:8787)")
	kbCmd.PersistentFlags().String("token", "", "Bearer token (default $KEVA_TOKEN)")

	kbCmd.AddCommand(
		newKBStoreCommand(baseURL),
		newKBGetCommand(baseURL),
		newKBHistoryCommand(baseURL),
		newKBDumpCommand(baseURL),
	)
	return kbCmd
}

func clientFor(cmd *cobra.Command, baseURL BaseURLFunc) *Client {
	base, _ := cmd.Flags().GetString("server")
	token, _ := cmd.Flags().GetString("token")
	if base == "" && baseURL != nil {
		base = baseURL()
	}
	return NewClient(base, token)
}

func printContent(cmd *cobra.Command, content map[string]interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(content)
}

func newKBStoreCommand(baseURL BaseURLFunc) *cobra.Command {
	storeCmd := &cobra.Command{
		Use:   "store",
		Short: "Store a new version of a key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, _ := cmd.Flags().GetString("key")
			valueStr, _ := cmd.Flags().GetString("value")
			file, _ := cmd.Flags().GetString("file")
			contentType, _ := cmd.Flags().GetString("content-type")
			tags, _ := cmd.Flags().GetStringArray("tag")
			createdBy, _ := cmd.Flags().GetString("created-by")
			ifMatch, _ := cmd.Flags().GetString("if-match")
			del, _ := cmd.Flags().GetBool("delete")

			var value json.RawMessage
			switch {
			case del:
				// tombstones carry no value
			case file != "":
				b, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				value = b
			case valueStr != "":
				value = json.RawMessage(valueStr)
			default:
				return fmt.Errorf("one of --value, --file, or --delete is required")
			}
			if len(value) > 0 && !json.Valid(value) {
				return fmt.Errorf("value is not valid JSON")
			}

			content, err := clientFor(cmd, baseURL).Store(cmd.Context(), StoreParams{
				Key:         key,
				Value:       value,
				ContentType: contentType,
				Tags:        tags,
				CreatedBy:   createdBy,
				IfMatch:     ifMatch,
				Delete:      del,
			})
			if err != nil {
				return err
			}
			return printContent(cmd, content)
		},
	}
	storeCmd.Flags().StringP("key", "k", "", "5-segment record key")
	storeCmd.Flags().String("value", "", "JSON value")
	storeCmd.Flags().String("file", "", "Read JSON value from file")
	storeCmd.Flags().String("content-type", "", "Content type (default application/json)")
	storeCmd.Flags().StringArray("tag", nil, "Tag (repeatable)")
	storeCmd.Flags().String("created-by", "", "Author identity")
	storeCmd.Flags().String("if-match", "", "Optimistic concurrency token: vN or etag")
	storeCmd.Flags().Bool("delete", false, "Append a tombstone version")
	_ = storeCmd.MarkFlagRequired("key")
	return storeCmd
}

func newKBGetCommand(baseURL BaseURLFunc) *cobra.Command {
	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Read a record: current, by version, or as of a time",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, _ := cmd.Flags().GetString("key")
			version, _ := cmd.Flags().GetUint64("version")
			asOf, _ := cmd.Flags().GetString("as-of")

			content, err := clientFor(cmd, baseURL).Get(cmd.Context(), GetParams{Key: key, Version: version, AsOf: asOf})
			if err != nil {
				return err
			}
			return printContent(cmd, content)
		},
	}
	getCmd.Flags().StringP("key", "k", "", "5-segment record key")
	getCmd.Flags().Uint64("version", 0, "Exact version")
	getCmd.Flags().String("as-of", "", "Point-in-time: RFC3339 or ms")
	_ = getCmd.MarkFlagRequired("key")
	return getCmd
}

func newKBHistoryCommand(baseURL BaseURLFunc) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List a key's versions, oldest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, _ := cmd.Flags().GetString("key")
			start, _ := cmd.Flags().GetUint64("start")
			limit, _ := cmd.Flags().GetInt("limit")
			filter, _ := cmd.Flags().GetString("filter")
			archived, _ := cmd.Flags().GetBool("include-archived")

			content, err := clientFor(cmd, baseURL).History(cmd.Context(), HistoryParams{
				Key:             key,
				Start:           start,
				Limit:           limit,
				Filter:          filter,
				IncludeArchived: archived,
			})
			if err != nil {
				return err
			}
			return printContent(cmd, content)
		},
	}
	historyCmd.Flags().StringP("key", "k", "", "5-segment record key")
	historyCmd.Flags().Uint64("start", 0, "Resume token from a prior page")
	historyCmd.Flags().Int("limit", 0, "Page size (0 = all)")
	historyCmd.Flags().String("filter", "", "CEL filter (server-side)")
	historyCmd.Flags().Bool("include-archived", false, "Include records relocated by retention")
	_ = historyCmd.MarkFlagRequired("key")
	return historyCmd
}

func newKBDumpCommand(baseURL BaseURLFunc) *cobra.Command {
	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "List every key recorded under a scope",
		RunE: func(cmd *cobra.Command, _ []string) error {
			scope, _ := cmd.Flags().GetString("scope")
			filter, _ := cmd.Flags().GetString("filter")

			content, err := clientFor(cmd, baseURL).Dump(cmd.Context(), scope, filter)
			if err != nil {
				return err
			}
			return printContent(cmd, content)
		},
	}
	dumpCmd.Flags().StringP("scope", "s", "", "Scope identifier (second key segment of session keys)")
	dumpCmd.Flags().String("filter", "", "CEL filter over current records (server-side)")
	_ = dumpCmd.MarkFlagRequired("scope")
	return dumpCmd
}
