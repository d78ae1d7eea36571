package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"iprompt/internal/prompts"
)

var (
	promptTitle       string
	promptContent     string
	promptContentFile string
	promptCategory    string
	promptTags        []string

	listSearch        string
	listCategory      string
	listUncategorized bool
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a prompt",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		content, err := readContent()
		if err != nil {
			return err
		}
		if strings.TrimSpace(promptTitle) == "" || strings.TrimSpace(content) == "" {
			return fmt.Errorf("--title and --content (or --content-file) are required")
		}
		p := application.Store.Add(prompts.Draft{
			Title:    promptTitle,
			Content:  content,
			Category: promptCategory,
			Tags:     promptTags,
		})
		return output(p)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List prompts, optionally filtered",
	Long: `List prompts. --search matches title, content and tags case-insensitively.
--category selects one category; --uncategorized selects prompts without one.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s := application.Store
		s.SetSearchQuery(listSearch)
		switch {
		case listUncategorized:
			s.SetSelectedCategory(prompts.Uncategorized)
		case listCategory != "":
			s.SetSelectedCategory(listCategory)
		default:
			s.ClearSelectedCategory()
		}
		return output(s.Filtered())
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, ok := application.Store.ByID(args[0])
		if !ok {
			return fmt.Errorf("prompt %s not found", args[0])
		}
		return output(p)
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update fields of a prompt",
	Long: `Update fields of a prompt. Only flags that are given change the prompt.
A content change keeps the previous content as a version. A title or content change
marks existing translations as outdated.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch prompts.Patch
		flags := cmd.Flags()
		if flags.Changed("title") {
			patch.Title = &promptTitle
		}
		if flags.Changed("content") || flags.Changed("content-file") {
			content, err := readContent()
			if err != nil {
				return err
			}
			patch.Content = &content
		}
		if flags.Changed("category") {
			patch.Category = &promptCategory
		}
		if flags.Changed("tags") {
			patch.Tags, patch.SetTags = promptTags, true
		}
		if !application.Store.Update(args[0], patch) {
			return fmt.Errorf("prompt %s not found", args[0])
		}
		p, _ := application.Store.ByID(args[0])
		return output(p)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !application.Store.Delete(args[0]) {
			return fmt.Errorf("prompt %s not found", args[0])
		}
		return output(map[string]string{"deleted": args[0]})
	},
}

var versionsCmd = &cobra.Command{
	Use:   "versions <id>",
	Short: "List the content versions of a prompt, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, ok := application.Store.ByID(args[0])
		if !ok {
			return fmt.Errorf("prompt %s not found", args[0])
		}
		if p.Versions == nil {
			p.Versions = []prompts.Version{}
		}
		return output(p.Versions)
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <id> <version-id>",
	Short: "Make a stored version the current content",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !application.Store.RestoreVersion(args[0], args[1]) {
			return fmt.Errorf("prompt %s has no version %s", args[0], args[1])
		}
		p, _ := application.Store.ByID(args[0])
		return output(p)
	},
}

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List categories in first-seen order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return output(application.Store.Categories())
	},
}

func readContent() (string, error) {
	if promptContentFile == "" {
		return promptContent, nil
	}
	if promptContentFile == "-" {
		raw, err := io.ReadAll(os.Stdin)
		return string(raw), err
	}
	raw, err := os.ReadFile(promptContentFile)
	if err != nil {
		return "", fmt.Errorf("read content file: %w", err)
	}
	return string(raw), nil
}

func init() {
	for _, c := range []*cobra.Command{addCmd, updateCmd} {
		c.Flags().StringVar(&promptTitle, "title", "", "prompt title")
		c.Flags().StringVar(&promptContent, "content", "", "prompt content")
		c.Flags().StringVar(&promptContentFile, "content-file", "", "read content from a file, - for stdin")
		c.Flags().StringVar(&promptCategory, "category", "", "category name")
		c.Flags().StringSliceVar(&promptTags, "tags", nil, "comma separated tags")
	}

	listCmd.Flags().StringVarP(&listSearch, "search", "s", "", "search title, content and tags")
	listCmd.Flags().StringVarP(&listCategory, "category", "c", "", "only prompts in this category")
	listCmd.Flags().BoolVar(&listUncategorized, "uncategorized", false, "only prompts without a category")
}
