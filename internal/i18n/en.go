package i18n

// EnMessages English message catalog
var EnMessages = map[string]string{
	// UI - Panel titles
	"panel.chat":     "Chat",
	"panel.projects": "Projects",
	"panel.notes":    "Notes",
	"panel.settings": "Settings",
	"panel.models":   "Models",

	// UI - Status bar
	"status.ready":   "Ready",
	"status.loading": "Loading...",
	"status.saving":  "Saving...",
	"status.project": "Project",
	"status.thread":  "Thread",
	"status.tokens":  "~%d tokens",
	"status.failed":  "Last query failed",

	// UI - Chat view
	"chat.new":         "+ new",
	"chat.limit":       "Thread limit reached (%d)",
	"chat.empty":       "No messages yet. Type a prompt and press Enter.",
	"chat.you":         "You",
	"chat.assistant":   "Assistant",
	"chat.placeholder": "Ask something...",
	"chat.cleared":     "Cleared %s",
	"chat.created":     "Created %s",

	// UI - Settings bar
	"settings.model": "Model",
	"settings.hint":  "←/→ select · +/- adjust · m model",

	// UI - Projects panel
	"projects.placeholder": "New project name",
	"projects.empty":       "No projects",
	"projects.created":     "Created project %s",
	"projects.switched":    "Switched to project %s",

	// UI - Notes panel
	"notes.placeholder": "New note name",
	"notes.empty":       "No notes",
	"notes.none":        "Select or create a note",
	"notes.saved":       "Saved %s",
	"notes.created":     "Created note %s",
	"notes.hint":        "enter open · ctrl+n new · ctrl+s save · esc back",

	// UI - Model picker
	"models.placeholder": "Search models",
	"models.none":        "No models match",
	"models.selected":    "Model set to %s",
	"models.fallback":    "Model list unavailable, using default",

	// UI - Key help
	"help.keys": "enter send · ctrl+p projects · ctrl+o settings · ctrl+e notes · ctrl+t new chat · tab next chat · ctrl+l clear · ctrl+c quit",

	// Errors
	"error.generic": "Error: %s",
	"error.backend": "Backend unreachable at %s",

	// REPL
	"repl.welcome":     "querydesk · backend %s · project %s · %s",
	"repl.help_hint":   "Type /help for commands.",
	"repl.unknown":     "Unknown command: %s",
	"repl.usage":       "Usage: %s",
	"repl.bye":         "Bye.",
	"repl.note_input":  "Enter note text; finish with a line containing only \".\"",
	"repl.no_journal":  "Query journal is disabled",
	"repl.no_note":     "No note selected; use /note <name> first",
	"repl.active":      "active",
	"repl.log_empty":   "No journal entries yet",
	"repl.interrupted": "Interrupted. Use /quit to exit.",

	// REPL commands
	"repl.commands":    "Commands:",
	"repl.prompt_hint": "Anything else is sent as a prompt. End a line with \\ to continue it.",
	"cmd.help":         "show this help",
	"cmd.quit":         "exit",
	"cmd.projects":     "list projects",
	"cmd.project":      "switch project",
	"cmd.mkproject":    "create a project",
	"cmd.chats":        "list threads of the project",
	"cmd.chat":         "select a thread",
	"cmd.new":          "create a thread",
	"cmd.clear":        "clear the active thread",
	"cmd.notes":        "list notes",
	"cmd.note":         "open a note",
	"cmd.mknote":       "create a note",
	"cmd.save":         "write the open note (body read until \".\")",
	"cmd.set":          "set temperature, top_p, top_k or frequency_penalty",
	"cmd.inc":          "step a parameter up",
	"cmd.dec":          "step a parameter down",
	"cmd.settings":     "show model settings",
	"cmd.models":       "list models",
	"cmd.model":        "choose a model",
	"cmd.log":          "show recent journal entries, or those of the active thread",
}
