package describe

import "fmt"

// BuildPrompt formats the generation instruction for one paragraph.
func BuildPrompt(class ClassLabel, req Request) string {
	prompt := fmt.Sprintf("An image of class %d. This image features class %d with a %s writing style. ",
		class, class, req.Style)
	prompt += fmt.Sprintf("The %s description is %d words long, and contains %d paragraphs.",
		req.Style, req.WordsPerParagraph(), req.Paragraphs)
	return prompt
}
