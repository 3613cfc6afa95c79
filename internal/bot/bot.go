package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"discord-automod/internal/commands"
	"discord-automod/internal/engine/cde"
	"discord-automod/internal/engine/ring"
	"discord-automod/internal/models"
	"discord-automod/internal/services"

	"github.com/bwmarrin/discordgo"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const (
	defaultEvalTimeout   = 5 * time.Second
	defaultNicknameCache = 50_000
	defaultMessageCache  = 100_000
)

// PlanQueue accepts plans for asynchronous execution, see acl.Executor
type PlanQueue interface {
	Push(plan *models.Plan) error
}

// Options configures the session and ingest path. The engine, executor and
// command handlers need the session themselves and are attached after New.
type Options struct {
	Token  string
	Logger *zap.Logger

	IngestQueue   int
	Workers       int
	EvalTimeout   time.Duration
	NicknameCache int
	MessageCache  int
}

type Bot struct {
	Session  *discordgo.Session
	Engine   *cde.Engine
	Executor PlanQueue
	Automod  *services.AutomodService
	Commands *commands.Registry
	Logger   *zap.Logger

	Ingest      *ring.Buffer
	workers     int
	consumers   *sync.WaitGroup
	evalTimeout time.Duration

	// last evaluated nickname per guild member
	nicknames *lru.Cache[string, string]
	// content hash of the last evaluated version per guild message
	messages *lru.Cache[string, uint64]

	StartTime time.Time
}

func New(opts Options) (*Bot, error) {
	s, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("session error: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// Pooled keep-alive transport for REST
	tr := &http.Transport{
		MaxIdleConns:          200,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       120 * time.Second,
		ForceAttemptHTTP2:     true,
		MaxConnsPerHost:       100,
		ResponseHeaderTimeout: 5 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	s.Client = &http.Client{
		Transport: &PerfTransport{Base: tr},
		Timeout:   15 * time.Second,
	}

	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsGuildMembers | // nickname changes
		discordgo.IntentsMessageContent

	// Content arrives through the raw event handler, no state needed
	s.StateEnabled = false
	s.ShouldReconnectOnError = true
	s.ShouldRetryOnRateLimit = true
	s.MaxRestRetries = 3

	cacheSize := opts.NicknameCache
	if cacheSize <= 0 {
		cacheSize = defaultNicknameCache
	}
	nicknames, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("nickname cache: %w", err)
	}
	messageCache := opts.MessageCache
	if messageCache <= 0 {
		messageCache = defaultMessageCache
	}
	messages, err := lru.New[string, uint64](messageCache)
	if err != nil {
		return nil, fmt.Errorf("message cache: %w", err)
	}

	evalTimeout := opts.EvalTimeout
	if evalTimeout <= 0 {
		evalTimeout = defaultEvalTimeout
	}

	b := &Bot{
		Session:     s,
		Logger:      logger.Named("bot"),
		Ingest:      ring.New(opts.IngestQueue),
		workers:     opts.Workers,
		evalTimeout: evalTimeout,
		nicknames:   nicknames,
		messages:    messages,
		StartTime:   time.Now(),
	}

	s.AddHandler(b.Ready)
	s.AddHandler(b.GuildCreate)
	s.AddHandler(b.InteractionCreate)
	s.AddHandler(b.RawEvent)

	return b, nil
}

// Start connects to the gateway and starts the evaluation workers. It
// returns once connected; ctx bounds the background monitors.
func (b *Bot) Start(ctx context.Context) error {
	if b.Engine == nil || b.Executor == nil {
		return errors.New("engine and executor must be attached before Start")
	}
	b.consumers = ring.StartConsumers(b.Ingest, b.workers, b.handleBatch, b.Logger)

	b.Logger.Info("Connecting to Discord Gateway")
	if err := b.Session.Open(); err != nil {
		return fmt.Errorf("gateway connection failed: %w", err)
	}

	// State is disabled, so fetch the bot user ourselves
	if b.Session.State.User == nil {
		u, err := b.Session.User("@me")
		if err != nil {
			return fmt.Errorf("failed to get bot user: %w", err)
		}
		b.Session.State.User = u
	}
	b.Logger.Info("Connected to Discord Gateway",
		zap.String("user", b.Session.State.User.Username),
		zap.String("user_id", b.Session.State.User.ID),
	)

	go b.monitorHeartbeat(ctx, 30*time.Second)
	return nil
}

// Close disconnects and waits for queued batches to be evaluated
func (b *Bot) Close() error {
	b.Logger.Info("Shutting down")
	err := b.Session.Close()

	b.Ingest.Close()
	if b.consumers != nil {
		b.consumers.Wait()
	}
	return err
}
