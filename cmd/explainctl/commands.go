package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/temcen/pirex-admin/internal/attribution"
	"github.com/temcen/pirex-admin/pkg/models"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "explainctl",
		Short:         "Offline explanation tooling",
		Long:          `Compute attribution shares and reason badges locally, without a running ranking backend.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newAttributeCmd(), newBadgesCmd())
	return root
}

type attributeOptions struct {
	reasons []string
	blend   string
	json    bool
}

func newAttributeCmd() *cobra.Command {
	opts := &attributeOptions{}
	cmd := &cobra.Command{
		Use:   "attribute",
		Short: "Attribute an item's score to pop, cooc and als",
		Example: `  explainctl attribute --reason popularity:0.3 --reason cooc=0.1 --blend 1,0.5,0.2
  explainctl attribute --reason anchor:i_42 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			blend, err := parseBlend(opts.blend)
			if err != nil {
				return err
			}
			result := attribution.Normalize(opts.reasons, blend)
			if opts.json {
				return writeAttributionJSON(cmd.OutOrStdout(), result)
			}
			writeAttribution(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&opts.reasons, "reason", "r", nil, "Reason string as emitted by the ranking backend (repeatable)")
	cmd.Flags().StringVarP(&opts.blend, "blend", "b", "1,1,1", "Blend weights as pop,cooc,als")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Output JSON")
	return cmd
}

func newBadgesCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "badges <tag>...",
		Short: "Show reason tags in display order with their help text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			badges := attribution.Badges(args)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(badges)
			}
			for _, b := range badges {
				marker := " "
				if !b.Known {
					marker = "?"
				}
				fmt.Fprintf(out, "%s %-24s %s\n", marker, b.Label, b.Help)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

// parseBlend reads "pop,cooc,als". Missing trailing weights are zero.
func parseBlend(s string) (models.BlendTriplet, error) {
	parts := strings.Split(s, ",")
	if len(parts) > 3 {
		return models.BlendTriplet{}, fmt.Errorf("blend takes at most 3 weights, got %d", len(parts))
	}
	var vals [3]float64
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return models.BlendTriplet{}, fmt.Errorf("invalid blend weight %q: %w", p, err)
		}
		vals[i] = v
	}
	return models.BlendTriplet{Pop: vals[0], Cooc: vals[1], Als: vals[2]}, nil
}

type attributionOutput struct {
	Shares        models.BlendTriplet `json:"shares"`
	Contributions models.BlendTriplet `json:"contributions"`
	Summary       string              `json:"summary"`
	Extracted     bool                `json:"extracted"`
	Anchors       []string            `json:"anchors"`
	Notes         []string            `json:"notes"`
}

func writeAttributionJSON(w io.Writer, r attribution.Result) error {
	out := attributionOutput{
		Shares:        r.Shares,
		Contributions: r.Contributions,
		Summary:       attribution.Summarize(r.Contributions),
		Extracted:     r.HasExtracted,
		Anchors:       r.Anchors,
		Notes:         r.Notes,
	}
	if out.Anchors == nil {
		out.Anchors = []string{}
	}
	if out.Notes == nil {
		out.Notes = []string{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeAttribution(w io.Writer, r attribution.Result) {
	fmt.Fprintf(w, "pop   %5s\n", attribution.Percent(r.Shares.Pop))
	fmt.Fprintf(w, "cooc  %5s\n", attribution.Percent(r.Shares.Cooc))
	fmt.Fprintf(w, "als   %5s\n", attribution.Percent(r.Shares.Als))
	fmt.Fprintln(w, attribution.Summarize(r.Contributions))
	if !r.HasExtracted {
		fmt.Fprintln(w, "(no per-family numbers in reasons; shares follow the blend)")
	}
	if len(r.Anchors) > 0 {
		fmt.Fprintf(w, "anchors: %s\n", strings.Join(r.Anchors, ", "))
	}
	if len(r.Notes) > 0 {
		fmt.Fprintf(w, "notes: %s\n", strings.Join(r.Notes, "; "))
	}
}
