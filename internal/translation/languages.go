package translation

type Option struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

var languageNames = map[string]string{
	"en": "English",
	"zh": "Chinese",
	"ja": "Japanese",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"ko": "Korean",
	"ru": "Russian",
	"pt": "Portuguese",
	"it": "Italian",
}

// SupportedLanguages lists the codes the chat provider advertises, in display order.
var SupportedLanguages = []string{"en", "zh", "ja", "es", "fr", "de", "ko", "ru", "pt", "it"}

// LanguageName returns the English name of code, or code itself when unknown.
func LanguageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return code
}

// ModelCatalog is the list of model selections offered when configuring the chat provider.
var ModelCatalog = []Option{
	{Value: "openai/gpt-3.5-turbo", Label: "OpenAI GPT-3.5"},
	{Value: "openai/gpt-4", Label: "OpenAI GPT-4"},
	{Value: "openai/gpt-4o-mini", Label: "OpenAI GPT-4o mini"},
	{Value: "anthropic/claude-3-haiku", Label: "Claude 3 Haiku"},
	{Value: "anthropic/claude-3-sonnet", Label: "Claude 3 Sonnet"},
	{Value: "gemini/gemini-pro", Label: "Google Gemini"},
	{Value: "qwen/qwen-turbo", Label: "Qwen Turbo"},
	{Value: "zhipu/glm-4", Label: "Zhipu GLM-4"},
	{Value: "deepseek/deepseek-chat", Label: "DeepSeek"},
	{Value: "ollama/qwen2:7b", Label: "Ollama - Qwen2 7B"},
	{Value: "ollama/llama3:8b", Label: "Ollama - Llama 3 8B"},
	{Value: CustomSelection, Label: "Custom model"},
}
