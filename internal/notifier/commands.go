package notifier

import (
	"sort"
	"strings"
)

// Router dispatches "/name" commands to handlers.
type Router struct {
	handlers map[string]func() string
	help     map[string]string
}

func NewRouter() *Router {
	return &Router{handlers: make(map[string]func() string), help: make(map[string]string)}
}

// Handle registers a command such as "/status".
func (r *Router) Handle(command, help string, fn func() string) {
	r.handlers[command] = fn
	r.help[command] = help
}

// Dispatch implements CommandHandler. Unknown commands get the help text.
// A "@botname" suffix is ignored.
func (r *Router) Dispatch(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	if fn, ok := r.handlers[cmd]; ok {
		return fn()
	}
	return r.Help()
}

// Help lists the registered commands.
func (r *Router) Help() string {
	cmds := make([]string, 0, len(r.help))
	for c := range r.help {
		cmds = append(cmds, c)
	}
	sort.Strings(cmds)
	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, c := range cmds {
		b.WriteString(c + " - " + r.help[c] + "\n")
	}
	return b.String()
}
