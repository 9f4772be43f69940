package main

import (
	"fmt"
	"strings"

	"github.com/speaches-ai/realtime-console/pkg/events"
)

// renderItems formats the conversation transcript for the viewport. Verbose
// mode additionally shows function call items and their outputs.
func renderItems(items []events.Item, width int, verbose bool) string {
	var sb strings.Builder

	for _, item := range items {
		block := renderItem(item, width, verbose)
		if block == "" {
			continue
		}
		sb.WriteString(block)
		sb.WriteString("\n\n")
	}

	return strings.TrimRight(sb.String(), "\n")
}

func renderItem(item events.Item, width int, verbose bool) string {
	switch item.Type {
	case events.ItemMessage:
		return renderMessage(item)

	case events.ItemFunctionCall:
		if !verbose {
			return toolResultStyle.Render("⚙ " + item.Name)
		}
		args := truncate(item.Arguments, max(width-len(item.Name)-8, 16))
		return toolNameStyle.Render("⚙ "+item.Name) + toolResultStyle.Render("("+args+")")

	case events.ItemFunctionCallOutput:
		if !verbose {
			return ""
		}
		return toolResultStyle.Render("  └ " + truncate(item.Output, max(width-6, 16)))

	default:
		return ""
	}
}

func renderMessage(item events.Item) string {
	text := item.TextContent()
	if text == "" {
		return ""
	}

	if item.Role == "user" {
		return userPrefixStyle.Render("🧑 You > ") + text
	}

	return assistantPrefixStyle.Render("🤖 Assistant\n") + renderMarkdown(text)
}

// renderEventLine formats one protocol event for the verbose event log.
func renderEventLine(dir string, ev events.Event, width int) string {
	line := fmt.Sprintf("%s %s", dir, ev.Type)
	if ev.ItemID != "" {
		line += " item=" + ev.ItemID
	}
	if ev.Error != nil {
		line += " error=" + ev.Error.Message
	}

	style := eventInStyle
	if dir == "→" {
		style = eventOutStyle
	}
	return style.Render(truncate(line, max(width-2, 16)))
}
