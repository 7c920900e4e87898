package scan

import (
	"fmt"
	"strings"
)

const defaultLanguage = "English"

// SystemInstruction is the fixed role given to every provider.
func SystemInstruction(language string) string {
	if language == "" {
		language = defaultLanguage
	}
	return fmt.Sprintf("You are a helpful recruiting assistant. Always answer in %s. Be specific and concise.", language)
}

// BuildPrompt embeds the site into the per-scan instruction.
func BuildPrompt(name, url, keywords string) string {
	keywords = strings.TrimSpace(keywords)
	filter := "all current openings"
	if keywords != "" {
		filter = keywords
	}

	var sb strings.Builder
	sb.WriteString("Your task is to check a website for currently posted job openings.\n\n")
	fmt.Fprintf(&sb, "Target site: %s (company name: %s)\n", url, name)
	fmt.Fprintf(&sb, "Keywords (optional): %s\n\n", filter)
	sb.WriteString("Use web search to find the current \"Careers\" or \"Jobs\" page of this company and list the openings posted there right now.\n")
	if keywords != "" {
		sb.WriteString("Focus on openings matching the keywords above.\n")
	} else {
		sb.WriteString("No keywords were given, so list the most recent positions.\n")
	}
	sb.WriteString("\nResponse format:\n")
	sb.WriteString("A concise Markdown list with one opening per line.\n")
	sb.WriteString("If no openings are found, say so explicitly.\n")
	sb.WriteString("Finish with a direct link to the page where you found the information.\n")
	return sb.String()
}
