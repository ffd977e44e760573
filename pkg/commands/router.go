// Package commands turns chat commands into bottle store calls and renders
// the replies.
package commands

import (
	"strings"
	"unicode"
)

// Canonical command names. Each also answers to its Chinese name.
const (
	ThrowCloud = "throw_cloud_bottle"
	PickCloud  = "pick_cloud_bottle"
	ViewPicked = "selected_picked_bottle"
	Count      = "bottle_count"
	ListPicked = "list_picked_bottles"
	ThrowLocal = "throw_bottle"
	PickLocal  = "pick_bottle"
	Help       = "help"
)

const DefaultPrefix = "/"

type entry struct {
	name    string
	aliases []string
	usage   string
}

var table = []entry{
	{ThrowCloud, []string{"扔云瓶中信"}, "扔云瓶中信 <内容> [图片]"},
	{PickCloud, []string{"捡云瓶中信"}, "捡云瓶中信"},
	{ViewPicked, []string{"被捡起的瓶中信", "random_picked_bottle"}, "被捡起的瓶中信 [编号]"},
	{Count, []string{"未被捡起的瓶中信"}, "未被捡起的瓶中信"},
	{ListPicked, []string{"被捡起的瓶中信列表"}, "被捡起的瓶中信列表"},
	{ThrowLocal, []string{"扔瓶中信"}, "扔瓶中信 <内容> [图片]"},
	{PickLocal, []string{"捡瓶中信"}, "捡瓶中信"},
	{Help, []string{"瓶中信帮助"}, "help"},
}

type Router struct {
	prefix string
	names  map[string]string
}

func NewRouter(prefix string) *Router {
	r := &Router{prefix: prefix, names: make(map[string]string)}
	for _, s := range table {
		r.names[s.name] = s.name
		for _, a := range s.aliases {
			r.names[a] = s.name
		}
	}
	return r
}

func (r *Router) Prefix() string { return r.prefix }

// Parse splits text into a canonical command name and its arguments.
// ok is false when text is not one of our commands.
func (r *Router) Parse(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	rest, found := strings.CutPrefix(text, r.prefix)
	if !found {
		return "", "", false
	}

	word := rest
	if i := strings.IndexFunc(rest, unicode.IsSpace); i >= 0 {
		word, args = rest[:i], strings.TrimSpace(rest[i:])
	}
	name, ok = r.names[word]
	if !ok {
		return "", "", false
	}
	return name, args, true
}

// Usage lists every command with its arguments, one per line.
func (r *Router) Usage() string {
	var sb strings.Builder
	sb.WriteString("瓶中信指令：\n")
	for _, s := range table {
		sb.WriteString(r.prefix)
		sb.WriteString(s.usage)
		if s.name != Help {
			sb.WriteString(" (")
			sb.WriteString(r.prefix)
			sb.WriteString(s.name)
			sb.WriteString(")")
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
