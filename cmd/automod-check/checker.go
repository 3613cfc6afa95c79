package main

import (
	"context"
	"fmt"

	"discord-automod/internal/engine/cde"
	"discord-automod/internal/engine/escalation"
	"discord-automod/internal/engine/fdl"
	"discord-automod/internal/engine/ledger"
	"discord-automod/internal/engine/matcher"
	"discord-automod/internal/engine/pattern"
	"discord-automod/internal/models"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

const (
	checkGuild  = "guild"
	checkAuthor = "author"
)

// RulesFile is the YAML document the checker loads
type RulesFile struct {
	Rules      []models.AutomodRule         `yaml:"rules"`
	Escalation []models.EscalationThreshold `yaml:"escalation"`
}

func ParseRulesFile(data []byte) (RulesFile, error) {
	var f RulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("failed to parse rules file: %w", err)
	}
	return f, nil
}

// Delivery is one piece of content replayed through the gateway parser
type Delivery struct {
	As        string // message, nickname or reaction
	Content   string
	ChannelID string
	Roles     []string
}

// Checker runs the real pipeline over in-memory stores
type Checker struct {
	engine   *cde.Engine
	compiler *pattern.Compiler
	seq      int
}

func NewChecker(f RulesFile) (*Checker, error) {
	compiler, err := pattern.NewCompiler(pattern.Options{})
	if err != nil {
		return nil, err
	}

	rules := make([]*models.AutomodRule, 0, len(f.Rules))
	for i := range f.Rules {
		r := f.Rules[i].Clone()
		r.ID = int64(i + 1)
		r.GuildID = checkGuild
		r.Enabled = true
		if r.MatchMode == "" {
			r.MatchMode = models.MatchAny
		}
		if err := r.Validate(); err != nil {
			compiler.Close()
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		for _, p := range r.Patterns {
			if _, err := compiler.Compile(p.Regex, p.Flags); err != nil {
				compiler.Close()
				return nil, fmt.Errorf("rule %q: %w", r.Name, err)
			}
		}
		rules = append(rules, r)
	}

	cfg := &models.EscalationConfig{GuildID: checkGuild, Thresholds: f.Escalation}
	if err := cfg.Validate(); err != nil {
		compiler.Close()
		return nil, fmt.Errorf("escalation: %w", err)
	}

	src := cde.NewStaticSource()
	src.SetRules(checkGuild, rules...)
	src.SetEscalation(cfg)

	engine := cde.NewEngine(
		src,
		src,
		matcher.New(compiler),
		ledger.New(ledger.NewMemStore(), nil),
		escalation.NewEvaluator(escalation.NewMemMarkers(), nil),
		nil,
	)
	return &Checker{engine: engine, compiler: compiler}, nil
}

func (c *Checker) Close() {
	c.compiler.Close()
}

// Check delivers the content once and returns the plan
func (c *Checker) Check(ctx context.Context, d Delivery) (*models.Plan, error) {
	eventType, payload, err := c.payload(d)
	if err != nil {
		return nil, err
	}
	events, err := fdl.ParseEvent(eventType, payload)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return &models.Plan{GuildID: checkGuild, UserID: checkAuthor}, nil
	}
	return c.engine.ProcessBatch(ctx, events)
}

// payload builds the dispatch body Discord would send for the delivery
func (c *Checker) payload(d Delivery) (string, []byte, error) {
	c.seq++
	roles := d.Roles
	if roles == nil {
		roles = []string{}
	}

	var eventType string
	var body map[string]interface{}
	switch d.As {
	case "", "message":
		eventType = fdl.EvtMessageCreate
		body = map[string]interface{}{
			"id":         fmt.Sprintf("message-%d", c.seq),
			"guild_id":   checkGuild,
			"channel_id": d.ChannelID,
			"author":     map[string]interface{}{"id": checkAuthor},
			"member":     map[string]interface{}{"roles": roles},
			"content":    d.Content,
		}
	case "nickname":
		eventType = fdl.EvtGuildMemberUpdate
		body = map[string]interface{}{
			"guild_id": checkGuild,
			"user":     map[string]interface{}{"id": checkAuthor},
			"roles":    roles,
			"nick":     d.Content,
		}
	case "reaction":
		eventType = fdl.EvtReactionAdd
		body = map[string]interface{}{
			"guild_id":   checkGuild,
			"channel_id": d.ChannelID,
			"message_id": fmt.Sprintf("message-%d", c.seq),
			"user_id":    checkAuthor,
			"member":     map[string]interface{}{"roles": roles},
			"emoji":      map[string]interface{}{"name": d.Content},
		}
	default:
		return "", nil, fmt.Errorf("unknown delivery %q, use message, nickname or reaction", d.As)
	}

	data, err := json.Marshal(body)
	return eventType, data, err
}
