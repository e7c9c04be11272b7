package bot

import (
	"context"
	"fmt"
	"html"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	rtsup "vocabot/internal/runtime/supervisor"
	kit "vocabot/internal/transport"
	logx "vocabot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

// Command is one routable command. Route is a space-separated path such as
// "reminder on".
type Command struct {
	Route       string
	Description string
	Usage       string
	Timeout     time.Duration
	Handle      HandlerFunc
}

type Request struct {
	Msg    kit.Message
	UserID int64
	Route  string
	Args   []string
	reply  func(ctx context.Context, text string) error
}

// Reply answers in the chat the command came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	return r.reply(ctx, text)
}

// Replier sends HTML text to a chat.
type Replier interface {
	Send(ctx context.Context, to kit.ChatTarget, text string) error
}

// Router matches incoming messages to commands by longest route prefix.
type Router struct {
	mu     sync.RWMutex
	routes map[string]Command
	order  []string

	out  Replier
	log  logx.Logger
	sem  chan struct{}
	menu kit.CommandMenuUpdater
}

const defaultCommandTimeout = 15 * time.Second

func NewRouter(out Replier, log logx.Logger, concurrency int) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if concurrency <= 0 {
		concurrency = 8
	}
	r := &Router{
		routes: map[string]Command{},
		out:    out,
		log:    log.With(logx.String("comp", "bot.router")),
		sem:    make(chan struct{}, concurrency),
	}
	r.Register(Command{
		Route:       "help",
		Description: "show available commands",
		Usage:       "/help",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, r.helpText())
		},
	})
	return r
}

// SetMenu sets the platform command menu updated by PublishMenu.
func (r *Router) SetMenu(m kit.CommandMenuUpdater) { r.menu = m }

func (r *Router) Register(cmds ...Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range cmds {
		route := strings.Join(strings.Fields(strings.ToLower(c.Route)), " ")
		if route == "" || c.Handle == nil {
			continue
		}
		if _, exists := r.routes[route]; !exists {
			r.order = append(r.order, route)
		}
		c.Route = route
		r.routes[route] = c
	}
}

// PublishMenu pushes the top-level commands to the platform menu.
func (r *Router) PublishMenu(ctx context.Context) error {
	if r.menu == nil {
		return nil
	}
	r.mu.RLock()
	seen := map[string]bool{}
	var cmds []kit.BotCommand
	for _, route := range r.order {
		root := strings.SplitN(route, " ", 2)[0]
		if seen[root] {
			continue
		}
		seen[root] = true
		desc := r.routes[route].Description
		if c, ok := r.routes[root]; ok {
			desc = c.Description
		}
		cmds = append(cmds, kit.BotCommand{Command: root, Description: desc})
	}
	r.mu.RUnlock()
	return r.menu.UpdateMenuCommands(ctx, cmds)
}

// Match resolves text to a command and its remaining arguments.
func (r *Router) Match(text string) (Command, []string, bool) {
	tokens := strings.Fields(strings.TrimSpace(text))
	if len(tokens) == 0 || !strings.HasPrefix(tokens[0], "/") {
		return Command{}, nil, false
	}
	head := strings.TrimPrefix(tokens[0], "/")
	if i := strings.IndexByte(head, '@'); i >= 0 {
		head = head[:i]
	}
	tokens[0] = head

	r.mu.RLock()
	defer r.mu.RUnlock()
	for n := len(tokens); n > 0; n-- {
		key := strings.ToLower(strings.Join(tokens[:n], " "))
		if c, ok := r.routes[key]; ok {
			return c, tokens[n:], true
		}
	}
	return Command{}, nil, false
}

// DispatchLoop consumes messages until ctx is done or in is closed. Each
// command runs in its own goroutine, bounded by the router concurrency.
func (r *Router) DispatchLoop(ctx context.Context, in <-chan kit.Message) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			// Settings are per user; group chats are ignored.
			if !msg.IsPrivate {
				continue
			}
			cmd, args, ok := r.Match(msg.Text)
			if !ok {
				continue
			}
			select {
			case r.sem <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-r.sem }()
				r.run(ctx, msg, cmd, args)
			}()
		}
	}
}

func (r *Router) run(parent context.Context, msg kit.Message, cmd Command, args []string) {
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	to := kit.ChatTarget{ChatID: msg.ChatID}
	req := &Request{
		Msg:    msg,
		UserID: msg.FromID,
		Route:  cmd.Route,
		Args:   args,
		reply:  func(ctx context.Context, text string) error { return r.out.Send(ctx, to, text) },
	}
	log := r.log.With(logx.String("cmd", cmd.Route), logx.Int64("user_id", msg.FromID))

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("panic: %v", p)
				log.Error("command panic", logx.Any("panic", p), logx.Stack(string(debug.Stack())))
			}
		}()
		return cmd.Handle(ctx, req)
	}()
	if err != nil {
		log.Warn("command failed", logx.Err(err), logx.Duration("dur", time.Since(start)))
		// The command context may already be expired.
		rctx, rcancel := context.WithTimeout(context.WithoutCancel(parent), 5*time.Second)
		defer rcancel()
		_ = req.Reply(rctx, "⚠️ "+html.EscapeString(userMessage(err)))
		return
	}
	log.Debug("command done", logx.Duration("dur", time.Since(start)))
}

// Run starts DispatchLoop under sup.
func (r *Router) Run(sup *rtsup.Supervisor, in <-chan kit.Message) {
	sup.Go("bot.dispatch", func(ctx context.Context) error {
		return r.DispatchLoop(ctx, in)
	})
}

func (r *Router) helpText() string {
	r.mu.RLock()
	routes := append([]string(nil), r.order...)
	cmds := make(map[string]Command, len(r.routes))
	for k, v := range r.routes {
		cmds[k] = v
	}
	r.mu.RUnlock()
	sort.Strings(routes)

	var b strings.Builder
	b.WriteString("<b>Commands</b>\n")
	for _, route := range routes {
		c := cmds[route]
		usage := c.Usage
		if usage == "" {
			usage = "/" + route
		}
		fmt.Fprintf(&b, "<code>%s</code> %s\n", html.EscapeString(usage), html.EscapeString(c.Description))
	}
	return strings.TrimRight(b.String(), "\n")
}
