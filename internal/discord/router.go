package discord

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/noisewatch/internal/observe"
)

// DefaultInteractionTimeout bounds one handler. Discord drops interactions
// that are not answered within three seconds.
const DefaultInteractionTimeout = 2500 * time.Millisecond

// HandlerFunc handles one interaction. ctx expires shortly before Discord
// stops waiting for the answer.
type HandlerFunc func(ctx context.Context, s Responder, i *discordgo.InteractionCreate)

type componentRoute struct {
	prefix  string
	handler HandlerFunc
}

// Router dispatches interactions by route. A route is the command name, or
// "command/subcommand" when a subcommand was invoked.
type Router struct {
	timeout time.Duration

	mu           sync.RWMutex
	defs         map[string]*discordgo.ApplicationCommand
	commands     map[string]HandlerFunc
	autocomplete map[string]HandlerFunc
	components   []componentRoute // longest prefix first
}

// RouterOption configures a [Router].
type RouterOption func(*Router)

// WithInteractionTimeout overrides [DefaultInteractionTimeout].
func WithInteractionTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRouter returns a router with no routes.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		timeout:      DefaultInteractionTimeout,
		defs:         make(map[string]*discordgo.ApplicationCommand),
		commands:     make(map[string]HandlerFunc),
		autocomplete: make(map[string]HandlerFunc),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Command registers a top-level command definition. h answers invocations
// without a subcommand and may be nil.
func (r *Router) Command(def *discordgo.ApplicationCommand, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.Name] = def
	if h != nil {
		r.commands[def.Name] = h
	}
}

// On registers the handler of a route such as "noise/start".
func (r *Router) On(route string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[route] = h
}

// Autocomplete registers the autocomplete handler of a route.
func (r *Router) Autocomplete(route string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.autocomplete[route] = h
}

// Component registers a handler for message components whose custom id
// starts with prefix. The longest matching prefix wins.
func (r *Router) Component(prefix string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components = append(r.components, componentRoute{prefix: prefix, handler: h})
	slices.SortStableFunc(r.components, func(a, b componentRoute) int {
		return cmp.Compare(len(b.prefix), len(a.prefix))
	})
}

// ApplicationCommands returns the registered definitions sorted by name, for
// bulk registration with Discord.
func (r *Router) ApplicationCommands() []*discordgo.ApplicationCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmds := make([]*discordgo.ApplicationCommand, 0, len(r.defs))
	for _, d := range r.defs {
		cmds = append(cmds, d)
	}
	slices.SortFunc(cmds, func(a, b *discordgo.ApplicationCommand) int { return cmp.Compare(a.Name, b.Name) })
	return cmds
}

// Dispatch runs the handler matching i. Unknown routes get an ephemeral
// notice; a panicking handler is logged and answered with a generic error.
func (r *Router) Dispatch(s Responder, i *discordgo.InteractionCreate) {
	route, h, ok := r.resolve(i)
	if !ok {
		slog.Warn("discord: no handler for interaction", "type", int(i.Type), "route", route)
		switch i.Type {
		case discordgo.InteractionApplicationCommandAutocomplete:
			ReplyChoices(s, i, nil)
		case discordgo.InteractionApplicationCommand, discordgo.InteractionMessageComponent:
			Reply(s, i, "This action is not supported.")
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	ctx, span := observe.StartSpan(ctx, observe.SpanInteraction, observe.RouteKey.String(route))

	var err error
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("discord: handler %s panicked: %v", route, p)
			observe.Logger(ctx).Error("discord: handler panicked", "route", route, "panic", p)
			Reply(s, i, "Something went wrong handling that.")
		}
		observe.EndSpan(span, err)
	}()
	h(ctx, s, i)
}

// resolve finds the route and handler of i.
func (r *Router) resolve(i *discordgo.InteractionCreate) (string, HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		route := routeOf(i.ApplicationCommandData())
		h, ok := r.commands[route]
		return route, h, ok
	case discordgo.InteractionApplicationCommandAutocomplete:
		route := routeOf(i.ApplicationCommandData())
		h, ok := r.autocomplete[route]
		return route, h, ok
	case discordgo.InteractionMessageComponent:
		id := i.MessageComponentData().CustomID
		for _, c := range r.components {
			if strings.HasPrefix(id, c.prefix) {
				return c.prefix, c.handler, true
			}
		}
		return id, nil, false
	}
	return "", nil, false
}

func routeOf(data discordgo.ApplicationCommandInteractionData) string {
	if len(data.Options) > 0 && data.Options[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return data.Name + "/" + data.Options[0].Name
	}
	return data.Name
}
