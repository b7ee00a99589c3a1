package router

import (
	"context"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	rtsup "remindbot/internal/runtime/supervisor"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Command struct {
	Name        string   // without the leading slash, e.g. "list"
	Aliases     []string // e.g. ["ls"]
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration // 0 uses Options.DefaultTimeout
	Handle      HandlerFunc
}

// Request is one inbound message routed to a handler.
type Request struct {
	Message *kit.Message
	Chat    kit.ChatTarget
	FromID  int64
	Command string // "" for plain (non-command) messages
	Args    []string
	ReqID   string
	IsOwner bool

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends plain text back to the originating chat.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true})
	return err
}

// ReplyHTML sends text with ParseMode HTML.
func (r *Request) ReplyHTML(ctx context.Context, text string) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true, ParseMode: "HTML"})
	return err
}

type Options struct {
	Workers        int           // default 4
	QueueSize      int           // default 256
	DefaultTimeout time.Duration // default 30s
	UserRatePerMin int           // 0 disables per-user limiting
}

const (
	msgUnknown     = "Unknown command. Try /help"
	msgBusy        = "⏳ Busy right now, try again in a moment."
	msgOwnerOnly   = "⛔ This command is for the bot owner only."
	msgNotAllowed  = "⛔ You are not allowed to use this bot."
	msgRateLimited = "⏳ Slow down a little, try again in a minute."
)

// CommandManager routes updates to commands (messages starting with "/") or
// to the fallback handler (everything else) on a bounded worker pool.
type CommandManager struct {
	mu       sync.RWMutex
	cmds     map[string]*Command // name and aliases
	ordered  []Command
	fallback HandlerFunc
	owners   []int64
	allowed  map[int64]struct{} // empty: everyone

	log     logx.Logger
	adapter kit.Adapter
	opts    Options
	limiter *UserLimiter

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	jobs chan func()
}

func NewCommandManager(log logx.Logger, adapter kit.Adapter, opts Options) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 30 * time.Second
	}
	return &CommandManager{
		cmds:    map[string]*Command{},
		log:     log.With(logx.String("comp", "telegram.router")),
		adapter: adapter,
		opts:    opts,
		limiter: NewUserLimiter(opts.UserRatePerMin),
		jobs:    make(chan func(), opts.QueueSize),
	}
}

// SetCommands replaces the registry. /help is always added.
func (m *CommandManager) SetCommands(cmds []Command) {
	cmds = append(cmds, Command{
		Name:        "help",
		Aliases:     []string{"h"},
		Description: "show this help",
		Usage:       "/help [command]",
		Handle: func(ctx context.Context, req *Request) error {
			return req.ReplyHTML(ctx, m.helpText(req.Args, req.IsOwner))
		},
	})

	table := map[string]*Command{}
	ordered := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Name), "/"))
		if name == "" || c.Handle == nil {
			continue
		}
		cc := c
		cc.Name = name
		table[name] = &cc
		ordered = append(ordered, cc)
	}
	for i := range ordered {
		c := table[ordered[i].Name]
		for _, a := range c.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			// canonical names win over aliases
			if _, taken := table[a]; !taken {
				table[a] = c
			}
		}
	}

	m.mu.Lock()
	m.cmds = table
	m.ordered = ordered
	m.mu.Unlock()
}

// SetFallback installs the handler for messages that are not commands.
func (m *CommandManager) SetFallback(h HandlerFunc) {
	m.mu.Lock()
	m.fallback = h
	m.mu.Unlock()
}

// SetOwners updates the owner list. Safe during hot reload.
func (m *CommandManager) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	m.mu.Lock()
	m.owners = cp
	m.mu.Unlock()
}

// SetAllowed restricts usage to ids (owners are always allowed). Empty allows everyone.
func (m *CommandManager) SetAllowed(ids []int64) {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	m.mu.Lock()
	m.allowed = set
	m.mu.Unlock()
}

// SetUserRate changes the per-user request budget. 0 disables it.
func (m *CommandManager) SetUserRate(perMin int) {
	m.mu.Lock()
	m.limiter = NewUserLimiter(perMin)
	m.mu.Unlock()
}

// Supervisor returns the worker pool supervisor (nil if not running).
func (m *CommandManager) Supervisor() *rtsup.Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return nil
	}
	return m.sup
}

func (m *CommandManager) setSupervisor(sup *rtsup.Supervisor, running bool) {
	m.runMu.Lock()
	m.sup = sup
	m.running = running
	m.runMu.Unlock()
}

// SyncMenu pushes the command list to the platform menu when the adapter supports it.
func (m *CommandManager) SyncMenu(ctx context.Context) error {
	up, ok := m.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	m.mu.RLock()
	cmds := append([]Command(nil), m.ordered...)
	m.mu.RUnlock()
	return up.UpdateMenuCommands(ctx, buildMenu(cmds))
}

// DispatchLoop consumes updates until ctx is done or updates is closed.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.NewSupervisor(ctx, rtsup.WithLogger(m.log), rtsup.WithCancelOnError(false))
	m.setSupervisor(sup, true)
	m.log.Info("command dispatcher started", logx.Int("workers", m.opts.Workers), logx.Int("queue_cap", cap(m.jobs)))

	for i := 0; i < m.opts.Workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			return m.worker(c, idx)
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
		)
	}

	defer func() {
		m.setSupervisor(sup, false)
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.setSupervisor(nil, false)
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if up.Kind == kit.UpdateMessage && up.Message != nil {
				m.routeMessage(ctx, up.Message)
			}
		}
	}
}

func (m *CommandManager) worker(ctx context.Context, idx int) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-m.jobs:
			func() {
				defer func() {
					if r := recover(); r != nil {
						m.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
					}
				}()
				job()
			}()
		}
	}
}

func (m *CommandManager) routeMessage(ctx context.Context, msg *kit.Message) {
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	m.mu.RLock()
	owner := isOwner(msg.FromID, m.owners)
	_, listed := m.allowed[msg.FromID]
	allowed := owner || len(m.allowed) == 0 || listed
	table := m.cmds
	fallback := m.fallback
	limiter := m.limiter
	m.mu.RUnlock()

	if !allowed {
		m.log.Debug("message from user not on the allow list", logx.Int64("from_id", msg.FromID))
		_, _ = m.adapter.SendText(ctx, chat, msgNotAllowed, nil)
		return
	}

	text := strings.TrimSpace(msg.Text)
	var (
		cmd  *Command
		args []string
	)
	if strings.HasPrefix(text, "/") && msg.Media == nil {
		parts := tokenizeCommandLine(text)
		word := commandWord(parts[0])
		c, ok := table[word]
		if !ok {
			_, _ = m.adapter.SendText(ctx, chat, msgUnknown, nil)
			return
		}
		if c.Access == AccessOwnerOnly && !owner {
			_, _ = m.adapter.SendText(ctx, chat, msgOwnerOnly, nil)
			return
		}
		cmd, args = c, parts[1:]
	} else if fallback == nil {
		return
	}

	if !owner && !limiter.Allow(msg.FromID) {
		_, _ = m.adapter.SendText(ctx, chat, msgRateLimited, nil)
		return
	}

	rid := newReqID()
	name, handle, timeout := "", fallback, m.opts.DefaultTimeout
	if cmd != nil {
		name, handle = cmd.Name, cmd.Handle
		if cmd.Timeout > 0 {
			timeout = cmd.Timeout
		}
	}
	req := &Request{
		Message: msg,
		Chat:    chat,
		FromID:  msg.FromID,
		Command: name,
		Args:    args,
		ReqID:   rid,
		IsOwner: owner,
		Adapter: m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", name),
		),
	}
	final := Chain(handle,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(timeout),
	)
	if !m.tryEnqueue(func() { _ = final(ctx, req) }) {
		_, _ = m.adapter.SendText(ctx, chat, msgBusy, nil)
	}
}

func (m *CommandManager) tryEnqueue(fn func()) bool {
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

func isOwner(id int64, owners []int64) bool {
	for _, o := range owners {
		if o == id {
			return true
		}
	}
	return false
}
