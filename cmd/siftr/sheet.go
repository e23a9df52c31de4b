package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/siftrapp/siftr-server/internal/domain"
	"github.com/siftrapp/siftr-server/internal/service"
)

var (
	where []string
	limit int
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize <sheet>",
	Short: "Print the normalized species records of a sheet as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, res, err := loadSheet(args[0])
		if err != nil {
			return err
		}
		if res.Dropped > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "dropped %d rows without a scientific name\n", res.Dropped)
		}
		return writeJSON(cmd.OutOrStdout(), res.Species)
	},
}

var attributesCmd = &cobra.Command{
	Use:   "attributes <sheet>",
	Short: "List every queryable attribute and its values",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ix, _, err := loadSheet(args[0])
		if err != nil {
			return err
		}
		attrs := ix.Attributes()
		out := cmd.OutOrStdout()
		for _, key := range attrs.Keys() {
			fmt.Fprintf(out, "%s: %s\n", key, strings.Join(attrs[key].Sorted(), ", "))
		}
		return nil
	},
}

var scoreCmd = &cobra.Command{
	Use:   "score <sheet>",
	Short: "Rank a sheet's species against observed attribute values",
	Example: `  siftr score conifers.csv --where "leaf shape=needle,scale" --where habitat=wetland
  siftr score herbs.tsv --where "flower color=white" --limit 5`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := parseWhere(where)
		if err != nil {
			return err
		}
		ix, _, err := loadSheet(args[0])
		if err != nil {
			return err
		}

		matches := ix.Top(service.CanonicalQuery(raw), limit)
		printMatches(cmd, matches)
		return nil
	},
}

func init() {
	scoreCmd.Flags().StringArrayVarP(&where, "where", "w", nil, "observed values as key=v1,v2 (repeatable)")
	scoreCmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most n species (0 for all)")
}

// parseWhere turns repeated key=v1,v2 flags into a raw query.
func parseWhere(pairs []string) (map[string][]string, error) {
	raw := make(map[string][]string, len(pairs))
	for _, pair := range pairs {
		key, values, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --where %q: expected key=value[,value]", pair)
		}
		for v := range strings.SplitSeq(values, ",") {
			raw[key] = append(raw[key], v)
		}
	}
	return raw, nil
}

func printMatches(cmd *cobra.Command, matches []domain.Match) {
	out := cmd.OutOrStdout()
	for _, m := range matches {
		name := m.Species.Name
		if m.Species.DisplayName != "" {
			name = fmt.Sprintf("%s (%s)", m.Species.Name, m.Species.DisplayName)
		}
		fmt.Fprintf(out, "%5.3f  %s\n", m.Score, name)
	}
}
