package correction

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cuongbtq/docconv/internal/domain"
)

const systemPrompt = `I need you to help me in correcting mistakes made from my OCR system. I will provide you with an image of a document and the output of my OCR system as a JSON and you should correct this output according to your expertise. The OCR system outputs the detected text and the text level, which is another term for header level. The absence of the key "text_level" in the JSON objects indicates that this is regular text. A text level of 1 means that this is a top level headline, so it basically refers to the number of hashtags in a markdown file.

Here are some extra data cleaning rules the client wishes:
@@CUSTOM_INSTRUCTION@@

Please correct the text and the text level where necessary, potentially also adding or removing the key altogether. Output only the new list of JSON objects, no further explanation. Output them in JSON mode.
`

const userPrompt = "Here is the current OCR result:\n\n```\n@@CONTENT_JSON@@\n```\n"

// appended to the Gemini prompt
const geminiJSONAddon = `Use this JSON schema:
Content = {'type' : str, 'text' : str, 'text_level' : int, 'page_idx' : int}
Return: list[Content]
`

// SystemPrompt returns the fixed instruction with the custom rule filled in
func SystemPrompt(customInstruction string) string {
	return strings.Replace(systemPrompt, "@@CUSTOM_INSTRUCTION@@", customInstruction, 1)
}

// UserPrompt returns the user message carrying the page blocks as JSON
func UserPrompt(blocks []domain.ContentBlock) (string, error) {
	data, err := json.MarshalIndent(blocks, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode page blocks: %w", err)
	}
	return strings.Replace(userPrompt, "@@CONTENT_JSON@@", string(data), 1), nil
}
