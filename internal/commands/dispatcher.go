package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/hatcp/internal/config"
	"github.com/haasonsaas/hatcp/internal/homeassistant"
	"github.com/haasonsaas/hatcp/internal/observability"
)

const (
	replyEmpty       = "ERR: Empty command"
	replyPingOK      = "OK: Connected to Home Assistant"
	replyPingFailed  = "ERR: Cannot reach Home Assistant"
	replyLevelRange  = "ERR: Level must be 0-100"
	replyPressFailed = "Failed to press button"
)

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// Hub performs the Home Assistant API calls.
	Hub homeassistant.Requester

	// Version is reported by HELP. Defaults to config.ProtocolVersion.
	Version string

	// ListLimit caps LIST output lines. Defaults to config.DefaultListLimit.
	ListLimit int

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

type handlerFunc func(ctx context.Context, cmd Command) string

// Dispatcher turns command lines into Home Assistant calls and text replies.
// It holds no per-session state and is safe for concurrent use.
type Dispatcher struct {
	hub       homeassistant.Requester
	lister    *homeassistant.Lister
	version   string
	listLimit int
	logger    *slog.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	handlers  map[Action]handlerFunc
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	version := strings.TrimSpace(cfg.Version)
	if version == "" {
		version = config.ProtocolVersion
	}
	limit := cfg.ListLimit
	if limit <= 0 {
		limit = config.DefaultListLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		hub:       cfg.Hub,
		lister:    homeassistant.NewLister(cfg.Hub),
		version:   version,
		listLimit: limit,
		logger:    logger.With("component", "commands"),
		metrics:   cfg.Metrics,
		tracer:    cfg.Tracer,
	}
	d.handlers = map[Action]handlerFunc{
		ActionHelp:        d.handleHelp,
		ActionPing:        d.handlePing,
		ActionList:        d.handleList,
		ActionListButtons: d.handleListButtons,
		ActionPress:       d.handlePress,
		ActionOn:          d.handlePower("turn_on", "on"),
		ActionOff:         d.handlePower("turn_off", "off"),
		ActionLevel:       d.handleLevel,
	}
	return d
}

// Handle processes one command line and returns exactly one reply. Multi-line
// replies use "\n" between lines; the session adds the CRLF terminator.
func (d *Dispatcher) Handle(ctx context.Context, line string) string {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	cmd, ok := Parse(line)
	if !ok {
		d.metrics.RecordCommand("EMPTY", "error", time.Since(start).Seconds())
		return replyEmpty
	}

	label := cmd.Action.String()
	ctx, span := d.tracer.TraceCommand(ctx, label)
	defer span.End()

	var reply string
	if handler, found := d.handlers[cmd.Action]; found {
		reply = handler(ctx, cmd)
	} else {
		reply = fmt.Sprintf("ERR: Unknown command '%s'. Type HELP for commands.", cmd.Keyword)
	}

	result := "ok"
	if strings.HasPrefix(reply, "ERR:") {
		result = "error"
	}
	d.metrics.RecordCommand(label, result, time.Since(start).Seconds())
	d.logger.DebugContext(ctx, "command handled",
		"action", label,
		"args", len(cmd.Args),
		"result", result,
	)
	return reply
}

func (d *Dispatcher) handleHelp(_ context.Context, _ Command) string {
	return HelpText(d.version)
}

func (d *Dispatcher) handlePing(ctx context.Context, _ Command) string {
	if d.request(ctx, http.MethodGet, "", nil).OK() {
		return replyPingOK
	}
	return replyPingFailed
}

func (d *Dispatcher) handleList(ctx context.Context, _ Command) string {
	entities := d.lister.ListControllable(ctx)
	shown := entities
	if len(shown) > d.listLimit {
		shown = shown[:d.listLimit]
	}
	lines := make([]string, 0, len(shown))
	for _, entity := range shown {
		lines = append(lines, fmt.Sprintf("%s [%s] - %s", entity.EntityID, entity.State, entity.Name))
	}
	return fmt.Sprintf("OK: %d entities\n", len(entities)) + strings.Join(lines, "\n")
}

func (d *Dispatcher) handleListButtons(ctx context.Context, _ Command) string {
	buttons := d.lister.ListButtons(ctx)
	lines := make([]string, 0, len(buttons))
	for _, button := range buttons {
		lines = append(lines, fmt.Sprintf("%s - %s", button.EntityID, button.Name))
	}
	return fmt.Sprintf("OK: %d buttons\n", len(buttons)) + strings.Join(lines, "\n")
}

func (d *Dispatcher) handlePress(ctx context.Context, cmd Command) string {
	if len(cmd.Args) < 1 {
		return "ERR: Usage: PRESS <entity_id>"
	}
	entityID := ButtonEntity(cmd.Arg(0))

	res := d.request(ctx, http.MethodPost, "services/button/press", map[string]any{"entity_id": entityID})
	if res.OK() {
		return "OK: Pressed " + entityID
	}
	return "ERR: " + res.Message(replyPressFailed)
}

func (d *Dispatcher) handlePower(service, word string) handlerFunc {
	return func(ctx context.Context, cmd Command) string {
		if len(cmd.Args) < 1 {
			return fmt.Sprintf("ERR: Usage: %s <entity_id>", cmd.Keyword)
		}
		entityID, target := PowerTarget(cmd.Arg(0), service)

		res := d.request(ctx, http.MethodPost, "services/"+target, map[string]any{"entity_id": entityID})
		if res.OK() {
			return fmt.Sprintf("OK: %s %s", entityID, word)
		}
		return "ERR: " + res.Detail()
	}
}

func (d *Dispatcher) handleLevel(ctx context.Context, cmd Command) string {
	if len(cmd.Args) < 2 {
		return "ERR: Usage: LEVEL <entity_id> <0-100>"
	}
	level, err := strconv.Atoi(cmd.Arg(1))
	if err != nil || level < 0 || level > 100 {
		return replyLevelRange
	}
	entityID := LightEntity(cmd.Arg(0))

	res := d.request(ctx, http.MethodPost, "services/light/turn_on", map[string]any{
		"entity_id":  entityID,
		"brightness": Brightness(level),
	})
	if res.OK() {
		return fmt.Sprintf("OK: %s set to %d%%", entityID, level)
	}
	return "ERR: " + res.Detail()
}

func (d *Dispatcher) request(ctx context.Context, method, endpoint string, body any) *homeassistant.Result {
	if d.hub == nil {
		return &homeassistant.Result{
			StatusCode: http.StatusInternalServerError,
			Body:       map[string]any{"error": "home assistant client not configured"},
			Err:        fmt.Errorf("home assistant client not configured"),
		}
	}
	return d.hub.Request(ctx, method, endpoint, body)
}
