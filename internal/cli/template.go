package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcdaddytn/patentgraph/internal/template"
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Manage prompt templates",
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored templates",
	Run: func(cmd *cobra.Command, args []string) {
		templates, err := dbClient.ListTemplates(context.Background())
		if err != nil {
			exitWithError("list templates: %v", err)
		}

		if len(templates) == 0 {
			fmt.Println("No templates found")
			return
		}

		fmt.Printf("%-18s %-8s %s\n", "ID", "ANSWERS", "NAME")
		for _, t := range templates {
			fmt.Printf("%-18s %-8d %s\n", t.ID, len(t.Answers), t.Name)
		}
	},
}

var templateShowCmd = &cobra.Command{
	Use:   "show <template-id>",
	Short: "Show a template's prompt and answer schema",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		t, err := dbClient.Template(context.Background(), args[0])
		if err != nil {
			exitWithError("get template: %v", err)
		}

		fmt.Printf("ID:      %s\n", t.ID)
		fmt.Printf("Name:    %s\n", t.Name)
		if t.Description != nil {
			fmt.Printf("About:   %s\n", *t.Description)
		}
		if len(t.Answers) > 0 {
			fmt.Println("Answers:")
			for _, a := range t.Answers {
				req := ""
				if a.Required {
					req = " (required)"
				}
				fmt.Printf("  %s: %s%s\n", a.Field, a.Type, req)
			}
		}
		fmt.Println()
		fmt.Println(t.Content)
	},
}

var templateAddCmd = &cobra.Command{
	Use:   "add <file.md>",
	Short: "Add or update a template from a markdown file",
	Long: `Add a template from a markdown file with YAML frontmatter:

  ---
  id: infringement-check
  name: Infringement Check
  answers:
    - {field: score, type: number, required: true}
    - {field: rationale, type: string}
  ---
  Assess whether the following patent...`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		t, err := template.LoadFile(args[0])
		if err != nil {
			exitWithError("load template: %v", err)
		}
		if err := dbClient.UpsertTemplate(context.Background(), t); err != nil {
			exitWithError("store template: %v", err)
		}
		fmt.Printf("Stored template %s (%s)\n", t.ID, t.Name)
	},
}

var templateDeleteCmd = &cobra.Command{
	Use:   "delete <template-id>",
	Short: "Delete a template",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := dbClient.DeleteTemplate(context.Background(), args[0]); err != nil {
			exitWithError("delete template: %v", err)
		}
		fmt.Printf("Template %s deleted\n", args[0])
	},
}

func init() {
	rootCmd.AddCommand(templateCmd)
	templateCmd.AddCommand(templateListCmd)
	templateCmd.AddCommand(templateShowCmd)
	templateCmd.AddCommand(templateAddCmd)
	templateCmd.AddCommand(templateDeleteCmd)
}
