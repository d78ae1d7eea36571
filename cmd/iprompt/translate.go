package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"iprompt/internal/prompts"
	"iprompt/internal/translation"
)

var (
	translateLangs []string
	translateText  string

	cfgSelection    string
	cfgCustomModel  string
	cfgAPIKey       string
	cfgBaseURL      string
	cfgPrompt       string
	cfgEnabled      bool
	cfgDefaultLangs []string
	cfgCache        bool
	cfgCacheExpiry  float64

	historyLimit int
)

type translateResult struct {
	Translation *prompts.Translation `json:"translation,omitempty" yaml:"translation,omitempty"`
	Error       string               `json:"error,omitempty" yaml:"error,omitempty"`
}

var translateCmd = &cobra.Command{
	Use:   "translate [id]",
	Short: "Translate a prompt, or free text with --text",
	Long: `Translate the title and content of a prompt into each --lang (default: the
configured default target languages) and store the results on the prompt.
With --text, translate the given text and print the results without storing them.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		langs := translateLangs
		if len(langs) == 0 {
			langs = application.Translator.Settings().DefaultTargetLanguages
		}
		if len(langs) == 0 {
			return fmt.Errorf("no target languages given")
		}

		if translateText != "" {
			return output(application.Translator.TranslateBatch(cmd.Context(), translateText, langs))
		}
		if len(args) != 1 {
			return fmt.Errorf("a prompt id or --text is required")
		}

		results := make(map[string]translateResult, len(langs))
		failed := 0
		for _, lang := range langs {
			t, err := application.TranslatePrompt(cmd.Context(), args[0], lang)
			if err != nil {
				results[lang] = translateResult{Error: err.Error()}
				failed++
				continue
			}
			results[lang] = translateResult{Translation: &t}
		}
		if err := output(results); err != nil {
			return err
		}
		if failed == len(langs) {
			return fmt.Errorf("translation failed for every language")
		}
		return nil
	},
}

var retranslateCmd = &cobra.Command{
	Use:   "retranslate",
	Short: "Refresh every outdated translation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return output(application.Retranslate(cmd.Context()))
	},
}

var translationCmd = &cobra.Command{
	Use:   "translation",
	Short: "Manage stored translations of a prompt",
}

var translationDeleteCmd = &cobra.Command{
	Use:   "delete <id> <lang>",
	Short: "Delete one translation of a prompt",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !application.Store.DeleteTranslation(args[0], args[1]) {
			return fmt.Errorf("prompt %s has no %s translation", args[0], args[1])
		}
		return output(map[string]string{"deleted": args[1], "prompt": args[0]})
	},
}

var translatorCmd = &cobra.Command{
	Use:   "translator",
	Short: "Translation provider settings, history and statistics",
}

var translatorConfigureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Configure the chat translation provider and select it",
	Long: `Configure the chat translation provider. --provider takes a model selection
such as openai/gpt-4o-mini, anthropic/claude-3-haiku or gemini/gemini-pro; other
identifiers are sent unchanged to an OpenAI-compatible endpoint given by --base-url.
Use --provider custom with --custom-model for any other model name.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		flags := cmd.Flags()
		id := translation.ChatProviderID
		application.Translator.UpdateSettings(func(s *translation.Settings) {
			c := s.Configs[id]
			if flags.Changed("provider") {
				c.Provider = cfgSelection
			}
			if flags.Changed("custom-model") {
				c.CustomModel = cfgCustomModel
			}
			if flags.Changed("api-key") {
				c.APIKey = cfgAPIKey
			}
			if flags.Changed("base-url") {
				c.BaseURL = cfgBaseURL
			}
			if flags.Changed("prompt") {
				c.CustomPrompt = cfgPrompt
			}
			s.Configs[id] = c
			s.Provider = id
			if flags.Changed("enabled") {
				s.Enabled = cfgEnabled
			}
			if flags.Changed("default-langs") {
				s.DefaultTargetLanguages = cfgDefaultLangs
			}
			if flags.Changed("cache") {
				s.CacheEnabled = cfgCache
			}
			if flags.Changed("cache-expiry") {
				s.CacheExpiry = cfgCacheExpiry
			}
		})

		p, _ := application.Translator.Provider(id)
		if !p.ValidateConfig(application.Translator.Settings().Configs[id]) {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning: configuration incomplete, a model selection and API key are required")
		}
		return output(maskedSettings(application.Translator.Settings()))
	},
}

type providerInfo struct {
	ID                 string   `json:"id" yaml:"id"`
	Name               string   `json:"name" yaml:"name"`
	SupportedLanguages []string `json:"supportedLanguages" yaml:"supportedLanguages"`
	Configured         bool     `json:"configured" yaml:"configured"`
}

type translatorView struct {
	Settings  translation.Settings `json:"settings" yaml:"settings"`
	Providers []providerInfo       `json:"providers" yaml:"providers"`
	Models    []translation.Option `json:"models" yaml:"models"`
}

var translatorShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show translation settings, providers and model choices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s := application.Translator.Settings()
		view := translatorView{Settings: maskedSettings(s), Models: translation.ModelCatalog}
		for _, p := range application.Translator.Providers() {
			c, ok := s.Configs[p.ID()]
			view.Providers = append(view.Providers, providerInfo{
				ID:                 p.ID(),
				Name:               p.Name(),
				SupportedLanguages: p.SupportedLanguages(),
				Configured:         ok && p.ValidateConfig(c),
			})
		}
		return output(view)
	},
}

var translatorHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List translation history, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return output(application.Translator.History(historyLimit))
	},
}

var translatorStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show translation statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return output(application.Translator.Statistics())
	},
}

var translatorClearHistoryCmd = &cobra.Command{
	Use:   "clear-history",
	Short: "Delete the translation history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		application.Translator.ClearHistory()
		return output(map[string]bool{"cleared": true})
	},
}

// maskedSettings hides API keys and omits the history.
func maskedSettings(s translation.Settings) translation.Settings {
	for id, c := range s.Configs {
		c.APIKey = maskKey(c.APIKey)
		s.Configs[id] = c
	}
	s.History = nil
	return s
}

func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:3] + strings.Repeat("*", 4) + key[len(key)-4:]
}

func init() {
	translateCmd.Flags().StringSliceVarP(&translateLangs, "lang", "l", nil, "target language codes")
	translateCmd.Flags().StringVar(&translateText, "text", "", "translate this text instead of a prompt")

	f := translatorConfigureCmd.Flags()
	f.StringVar(&cfgSelection, "provider", "", "model selection, e.g. openai/gpt-4o-mini")
	f.StringVar(&cfgCustomModel, "custom-model", "", "model name when --provider is custom")
	f.StringVar(&cfgAPIKey, "api-key", "", "API key")
	f.StringVar(&cfgBaseURL, "base-url", "", "API base URL")
	f.StringVar(&cfgPrompt, "prompt", "", "custom system prompt, {targetLang} is replaced")
	f.BoolVar(&cfgEnabled, "enabled", true, "enable translation")
	f.StringSliceVar(&cfgDefaultLangs, "default-langs", nil, "default target languages")
	f.BoolVar(&cfgCache, "cache", true, "reuse recent translations from history")
	f.Float64Var(&cfgCacheExpiry, "cache-expiry", translation.DefaultCacheExpiry, "cache expiry in hours")

	translatorHistoryCmd.Flags().IntVar(&historyLimit, "limit", 0, "newest entries to show, 0 for all")

	translationCmd.AddCommand(translationDeleteCmd)
	translatorCmd.AddCommand(translatorConfigureCmd, translatorShowCmd, translatorHistoryCmd, translatorStatsCmd, translatorClearHistoryCmd)
}
