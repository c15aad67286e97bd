package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcdaddytn/patentgraph/internal/family"
	"github.com/mcdaddytn/patentgraph/internal/models"
)

var (
	exploreSeeds         []string
	exploreCitationWt    float64
	exploreCPCWt         float64
	exploreMembership    float64
	exploreExpansion     float64
	explorePortfolio     []string
	explorePortfolioWt   float64
	exploreDirection     string
	exploreMaxCandidates int
	exploreSetStatus     string
	showStatus           string
)

var exploreCmd = &cobra.Command{
	Use:   "explore",
	Short: "Grow patent families by scored citation-graph expansion",
}

var exploreCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an exploration from seed patents",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		opts := &family.Options{
			PortfolioBoost: explorePortfolioWt,
			PortfolioIDs:   explorePortfolio,
		}
		if cmd.Flags().Changed("citation-weight") || cmd.Flags().Changed("cpc-weight") {
			opts.Weights = &models.Weights{Citation: exploreCitationWt, CPC: exploreCPCWt}
		}
		if cmd.Flags().Changed("membership") {
			opts.MembershipThreshold = &exploreMembership
		}
		if cmd.Flags().Changed("expansion") {
			opts.ExpansionThreshold = &exploreExpansion
		}

		svc := getExplorationService()
		exp, err := svc.Create(context.Background(), args[0], exploreSeeds, opts)
		if err != nil {
			exitWithError("create exploration: %v", err)
		}

		fmt.Printf("Created exploration %s with %d seeds\n", exp.ID, len(exp.SeedIDs))
		fmt.Printf("Expand it with: patentgraph explore expand %s\n", exp.ID)
	},
}

var exploreExpandCmd = &cobra.Command{
	Use:   "expand <exploration-id>",
	Short: "Run one generation of citation expansion",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc := getExplorationService()
		summary, err := svc.Expand(context.Background(), args[0], expandParams(cmd))
		if err != nil {
			exitWithError("expand exploration: %v", err)
		}
		printSummary(summary)
	},
}

var exploreSiblingsCmd = &cobra.Command{
	Use:   "siblings <exploration-id>",
	Short: "Discover sibling patents through shared cited parents",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc := getExplorationService()
		summary, err := svc.ExpandSiblings(context.Background(), args[0], expandParams(cmd))
		if err != nil {
			exitWithError("expand siblings: %v", err)
		}
		printSummary(summary)
	},
}

var exploreRescoreCmd = &cobra.Command{
	Use:   "rescore <exploration-id>",
	Short: "Recompute every score and reclassify, clearing manual overrides",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc := getExplorationService()
		summary, err := svc.Rescore(context.Background(), args[0], expandParams(cmd))
		if err != nil {
			exitWithError("rescore exploration: %v", err)
		}
		printSummary(summary)
	},
}

var exploreSetStatusCmd = &cobra.Command{
	Use:   "set-status <exploration-id> <patent-id>...",
	Short: "Manually override patent statuses",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		status := models.PatentStatus(exploreSetStatus)
		updates := make([]family.StatusUpdate, 0, len(args)-1)
		for _, id := range args[1:] {
			updates = append(updates, family.StatusUpdate{PatentID: id, Status: status})
		}

		svc := getExplorationService()
		if err := svc.SetStatuses(context.Background(), args[0], updates); err != nil {
			exitWithError("set status: %v", err)
		}
		fmt.Printf("Updated %d patents to %s\n", len(updates), status)
	},
}

var exploreShowCmd = &cobra.Command{
	Use:   "show <exploration-id>",
	Short: "Show an exploration and its patents",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc := getExplorationService()
		exp, err := svc.Get(context.Background(), args[0])
		if err != nil {
			exitWithError("get exploration: %v", err)
		}

		fmt.Printf("Exploration: %s (%s)\n", exp.ID, exp.Name)
		fmt.Printf("Seeds:       %s\n", strings.Join(exp.SeedIDs, ", "))
		fmt.Printf("Generation:  %d\n", exp.Generation)
		fmt.Printf("Thresholds:  membership %.2f, expansion %.2f\n",
			exp.MembershipThreshold, exp.ExpansionThreshold)
		fmt.Printf("Weights:     citation %.0f, cpc %.0f\n", exp.Weights.Citation, exp.Weights.CPC)
		if exp.PortfolioBoost > 0 {
			fmt.Printf("Boost:       %.2f over %d portfolio patents\n",
				exp.PortfolioBoost, len(exp.PortfolioIDs))
		}

		fmt.Printf("Patents:     %d members, %d candidates, %d excluded\n",
			len(exp.ByStatus(models.StatusMember)),
			len(exp.ByStatus(models.StatusCandidate)),
			len(exp.ByStatus(models.StatusExcluded)))

		fmt.Println()
		fmt.Printf("%-15s %-10s %-7s %-4s %-10s %s\n", "PATENT", "STATUS", "SCORE", "GEN", "ROLE", "FLAGS")
		for _, p := range sortedPatents(exp, showStatus) {
			flags := make([]string, 0, 2)
			if p.Seed {
				flags = append(flags, "seed")
			}
			if p.Overridden {
				flags = append(flags, "overridden")
			}
			fmt.Printf("%-15s %-10s %-7.3f %-4d %-10s %s\n",
				p.PatentID, p.Status, p.Score, p.Generation, p.Role, strings.Join(flags, ","))
		}
	},
}

var exploreListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all explorations",
	Run: func(cmd *cobra.Command, args []string) {
		svc := getExplorationService()
		explorations, err := svc.List(context.Background())
		if err != nil {
			exitWithError("list explorations: %v", err)
		}

		if len(explorations) == 0 {
			fmt.Println("No explorations found")
			return
		}

		fmt.Printf("%-10s %-6s %-5s %-8s %-20s %s\n", "ID", "SEEDS", "GEN", "PATENTS", "UPDATED", "NAME")
		for _, exp := range explorations {
			fmt.Printf("%-10s %-6d %-5d %-8d %-20s %s\n",
				exp.ID, len(exp.SeedIDs), exp.Generation, len(exp.Patents),
				exp.UpdatedAt.Format("2006-01-02 15:04:05"), exp.Name)
		}
	},
}

var exploreDeleteCmd = &cobra.Command{
	Use:   "delete <exploration-id>",
	Short: "Delete an exploration",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc := getExplorationService()
		if err := svc.Delete(context.Background(), args[0]); err != nil {
			exitWithError("delete exploration: %v", err)
		}
		fmt.Printf("Exploration %s deleted\n", args[0])
	},
}

var exploreExportCmd = &cobra.Command{
	Use:   "export <exploration-id> <name>",
	Short: "Export exploration members as a named focus area",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		svc := getExplorationService()
		fa, err := svc.ExportFocusArea(context.Background(), args[0], args[1])
		if err != nil {
			exitWithError("export focus area: %v", err)
		}
		fmt.Printf("Exported focus area %s (%s) with %d patents\n", fa.ID, fa.Name, len(fa.PatentIDs))
	},
}

var focusAreasCmd = &cobra.Command{
	Use:   "focus-areas",
	Short: "List exported focus areas",
	Run: func(cmd *cobra.Command, args []string) {
		svc := getExplorationService()
		areas, err := svc.ListFocusAreas(context.Background())
		if err != nil {
			exitWithError("list focus areas: %v", err)
		}

		if len(areas) == 0 {
			fmt.Println("No focus areas found")
			return
		}

		fmt.Printf("%-10s %-10s %-8s %s\n", "ID", "SOURCE", "PATENTS", "NAME")
		for _, fa := range areas {
			fmt.Printf("%-10s %-10s %-8d %s\n", fa.ID, fa.ExplorationID, len(fa.PatentIDs), fa.Name)
		}
	},
}

// expandParams builds engine parameters from the shared expand flags,
// only forwarding values the user actually set.
func expandParams(cmd *cobra.Command) family.ExpandParams {
	params := family.ExpandParams{
		Direction:     models.Direction(exploreDirection),
		MaxCandidates: exploreMaxCandidates,
	}
	if cmd.Flags().Changed("citation-weight") || cmd.Flags().Changed("cpc-weight") {
		params.Weights = &models.Weights{Citation: exploreCitationWt, CPC: exploreCPCWt}
	}
	if cmd.Flags().Changed("membership") {
		params.MembershipThreshold = &exploreMembership
	}
	if cmd.Flags().Changed("expansion") {
		params.ExpansionThreshold = &exploreExpansion
	}
	if cmd.Flags().Changed("boost") {
		params.PortfolioBoost = &explorePortfolioWt
	}
	return params
}

func printSummary(s *models.GenerationSummary) {
	fmt.Printf("Generation %d complete\n", s.Generation)
	fmt.Printf("  Discovered: %d\n", s.Discovered)
	fmt.Printf("  Promoted:   %d\n", s.Promoted)
	fmt.Printf("  Candidates: %d\n", s.Candidates)
	fmt.Printf("  Excluded:   %d\n", s.Excluded)
	if s.DroppedOverflow > 0 {
		fmt.Printf("  Dropped:    %d (over candidate limit)\n", s.DroppedOverflow)
	}
	if s.Skipped > 0 {
		fmt.Printf("  Skipped:    %d (%s)\n", s.Skipped, strings.Join(s.SkippedIDs, ", "))
	}
}

// sortedPatents orders by status, then score descending, then id.
func sortedPatents(exp *models.Exploration, statusFilter string) []*models.ExplorationPatent {
	rank := map[models.PatentStatus]int{
		models.StatusMember:    0,
		models.StatusCandidate: 1,
		models.StatusExcluded:  2,
	}

	patents := make([]*models.ExplorationPatent, 0, len(exp.Patents))
	for _, p := range exp.Patents {
		if statusFilter != "" && string(p.Status) != statusFilter {
			continue
		}
		patents = append(patents, p)
	}
	sort.Slice(patents, func(i, j int) bool {
		if rank[patents[i].Status] != rank[patents[j].Status] {
			return rank[patents[i].Status] < rank[patents[j].Status]
		}
		if patents[i].Score != patents[j].Score {
			return patents[i].Score > patents[j].Score
		}
		return patents[i].PatentID < patents[j].PatentID
	})
	return patents
}

func addExpandFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&exploreDirection, "direction", string(models.DirectionBoth), "citation direction: forward, backward, or both")
	cmd.Flags().Float64Var(&exploreCitationWt, "citation-weight", models.DefaultWeights().Citation, "citation proximity weight")
	cmd.Flags().Float64Var(&exploreCPCWt, "cpc-weight", models.DefaultWeights().CPC, "CPC overlap weight")
	cmd.Flags().Float64Var(&exploreMembership, "membership", 0, "membership threshold override")
	cmd.Flags().Float64Var(&exploreExpansion, "expansion", 0, "expansion threshold override")
	cmd.Flags().Float64Var(&explorePortfolioWt, "boost", 0, "portfolio boost override")
	cmd.Flags().IntVar(&exploreMaxCandidates, "max-candidates", 0, "cap on new candidates per generation (0 = unlimited)")
}

func init() {
	rootCmd.AddCommand(exploreCmd)
	rootCmd.AddCommand(focusAreasCmd)

	exploreCmd.AddCommand(exploreCreateCmd)
	exploreCmd.AddCommand(exploreExpandCmd)
	exploreCmd.AddCommand(exploreSiblingsCmd)
	exploreCmd.AddCommand(exploreRescoreCmd)
	exploreCmd.AddCommand(exploreSetStatusCmd)
	exploreCmd.AddCommand(exploreShowCmd)
	exploreCmd.AddCommand(exploreListCmd)
	exploreCmd.AddCommand(exploreDeleteCmd)
	exploreCmd.AddCommand(exploreExportCmd)

	exploreCreateCmd.Flags().StringSliceVar(&exploreSeeds, "seed", nil, "seed patent id (repeatable)")
	exploreCreateCmd.MarkFlagRequired("seed")
	exploreCreateCmd.Flags().Float64Var(&exploreCitationWt, "citation-weight", models.DefaultWeights().Citation, "citation proximity weight")
	exploreCreateCmd.Flags().Float64Var(&exploreCPCWt, "cpc-weight", models.DefaultWeights().CPC, "CPC overlap weight")
	exploreCreateCmd.Flags().Float64Var(&exploreMembership, "membership", 0, "membership threshold")
	exploreCreateCmd.Flags().Float64Var(&exploreExpansion, "expansion", 0, "expansion threshold")
	exploreCreateCmd.Flags().StringSliceVar(&explorePortfolio, "portfolio", nil, "portfolio patent id (repeatable)")
	exploreCreateCmd.Flags().Float64Var(&explorePortfolioWt, "boost", 0, "score bonus for portfolio patents")

	addExpandFlags(exploreExpandCmd)
	addExpandFlags(exploreSiblingsCmd)
	addExpandFlags(exploreRescoreCmd)

	exploreSetStatusCmd.Flags().StringVar(&exploreSetStatus, "status", "", "target status: member, candidate, or excluded")
	exploreSetStatusCmd.MarkFlagRequired("status")

	exploreShowCmd.Flags().StringVar(&showStatus, "filter", "", "only show patents with this status")
}
