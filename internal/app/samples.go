package app

import "iprompt/internal/prompts"

var samplePrompts = []prompts.Draft{
	{
		Title: "Code review assistant",
		Content: "Act as a senior developer and review the code below. Focus on:\n" +
			"1. Code quality and readability\n" +
			"2. Potential bugs and security issues\n" +
			"3. Performance improvements\n" +
			"4. Best practices\n\n" +
			"Code:\n[paste code here]",
		Category: "Development",
		Tags:     []string{"code review", "dev tools", "Code Review"},
	},
	{
		Title: "Chinese-English translation expert",
		Content: "Act as a professional Chinese-English translator. I will provide Chinese or English text. Please:\n" +
			"1. Translate it accurately\n" +
			"2. Keep the tone and style of the original\n" +
			"3. Offer alternatives for technical terms\n" +
			"4. Explain cultural background when needed\n\n" +
			"Text to translate:\n[enter text here]",
		Category: "Translation",
		Tags:     []string{"translation", "zh-en", "Translation"},
	},
	{
		Title: "Weekly report generator",
		Content: "Write a professional weekly report from the work items I provide. Structure:\n" +
			"1. Work completed this week, most important first\n" +
			"2. Problems met and how they were solved\n" +
			"3. Plan for next week\n" +
			"4. Support or resources needed\n\n" +
			"This week's work:\n[list this week's work]",
		Category: "Writing",
		Tags:     []string{"weekly report", "summary", "Report"},
	},
}

// SeedSamples adds the built-in example prompts and returns how many were added.
func (a *App) SeedSamples() int {
	for _, d := range samplePrompts {
		a.Store.Add(d)
	}
	return len(samplePrompts)
}
