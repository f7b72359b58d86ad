package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hodlwarz/arena/internal/ability"
	"github.com/hodlwarz/arena/internal/bridge"
	"github.com/hodlwarz/arena/internal/ledger"
	"github.com/hodlwarz/arena/internal/sim"
)

// Commands is the inbound command surface: it maps websocket messages
// onto engine operations and tracks presence for the simulation.
type Commands struct {
	engine     *sim.Engine
	reconciler *bridge.Reconciler
	metrics    *Metrics
	logger     *slog.Logger

	hub *Hub
}

func NewCommands(engine *sim.Engine, rec *bridge.Reconciler, metrics *Metrics, logger *slog.Logger) *Commands {
	return &Commands{
		engine:     engine,
		reconciler: rec,
		metrics:    metrics,
		logger:     logger,
	}
}

// SetHub breaks the hub/handler construction cycle.
func (c *Commands) SetHub(h *Hub) { c.hub = h }

// Joined starts simulating a newly connected address, seeded from the
// reconciler's cached ledger view when one exists.
func (c *Commands) Joined(addr string) {
	var seed *ledger.Snapshot
	if c.reconciler != nil {
		seed = c.reconciler.CachedSnapshot(addr)
	}
	c.engine.AddCombatant(addr, seed, time.Now())
	c.logger.Info("combatant joined", "addr", addr)
}

func (c *Commands) Left(addr string) {
	c.engine.RemoveCombatant(addr, time.Now())
	c.logger.Info("combatant left", "addr", addr)
}

type allocateRequest struct {
	Ability int `json:"ability"`
}

type commandResult struct {
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Reason  string `json:"reason,omitempty"`
}

func (c *Commands) HandleMessage(ctx context.Context, client *Client, msg WSMessage) {
	c.metrics.IncrCommand()

	switch msg.Type {
	case "allocate_ability":
		var req allocateRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			c.reply(client, commandResult{Command: msg.Type, Reason: "bad payload"})
			return
		}
		if req.Ability < 0 || req.Ability >= int(ability.Count) {
			c.reply(client, commandResult{Command: msg.Type, Reason: "unknown ability"})
			return
		}
		if err := c.engine.AllocateManually(client.Addr, ability.ID(req.Ability)); err != nil {
			c.reply(client, commandResult{Command: msg.Type, Reason: err.Error()})
			return
		}
		c.reply(client, commandResult{Command: msg.Type, OK: true})

	default:
		c.logger.Debug("unknown command", "type", msg.Type, "addr", client.Addr)
	}
}

func (c *Commands) reply(client *Client, res commandResult) {
	if c.hub == nil {
		return
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return
	}
	c.hub.SendTo(client.Addr, WSMessage{Type: "command_result", Payload: payload})
}
