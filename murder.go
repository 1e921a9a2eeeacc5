/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Murder party table
//
// One device (or several, looking at the same table) walks through the setup
// wizard: player count, player names, one weapon per player, one location per
// player. Confirming the last location deals every player a secret target,
// weapon, and location. Cards are then flipped one at a time.
//
// Features:
// - WebSockets per table ID: /murder/:table and /murder/:table/ws
// - Every viewer of a table sees the same wizard state
// - Hidden cards never leave the server with their contents
// - Rejected actions are reported only to the viewer who sent them
// - Tables auto-reaped after configurable idle timeout
// - Random 8-char table IDs via crypto/rand, with server-side collision check
// - In-browser QR button to share the current table, backed by go-qrcode

package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"hash/fnv"
	"log"
	mrand "math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/murderparty/games/murder"
)

const (
	tableIDLength  = 8
	tableIDLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// ClientMessage is any action sent by a viewer.
type ClientMessage struct {
	Type  string `json:"type"`            // see clientMessageTypes
	Index int    `json:"index,omitempty"` // set_player_name, set_weapon, set_location, toggle_reveal
	Value string `json:"value,omitempty"` // set_player_name, set_weapon, set_location
	Count int    `json:"count,omitempty"` // set_player_count
}

var clientMessageTypes = map[string]bool{
	"set_player_count": true,
	"set_player_name":  true,
	"set_weapon":       true,
	"set_location":     true,
	"advance":          true,
	"submit":           true,
	"retreat":          true,
	"reset":            true,
	"toggle_reveal":    true,
}

// StateMessage mirrors the wizard to every viewer after each accepted action.
type StateMessage struct {
	Type string `json:"type"` // "state"
	murder.View
}

// RejectedMessage is sent only to the viewer whose action was refused.
type RejectedMessage struct {
	Type    string `json:"type"`   // "rejected"
	Action  string `json:"action"` // the refused ClientMessage type
	Message string `json:"message"`
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	viewerID string
}

type tableEvent struct {
	client *Client
	msg    ClientMessage
}

// Table owns one wizard session. Only the run loop touches the session, so
// each action runs to completion before the next is read.
type Table struct {
	id      string
	clients map[*Client]bool
	session *murder.Session

	register chan *Client
	unreg    chan *Client
	events   chan tableEvent
	done     chan struct{}
	stopOnce sync.Once

	mu sync.RWMutex

	createdAt  time.Time
	lastActive time.Time
}

func newTable(tableID string, rng *mrand.Rand) *Table {
	now := time.Now()
	return &Table{
		id:         tableID,
		clients:    make(map[*Client]bool),
		session:    murder.NewSession(rng),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		events:     make(chan tableEvent),
		done:       make(chan struct{}),
		createdAt:  now,
		lastActive: now,
	}
}

func (t *Table) run(cfg *Config) {
	for {
		select {
		case <-t.done:
			return

		case c := <-t.register:
			t.mu.Lock()
			t.lastActive = time.Now()
			t.clients[c] = true
			t.sendLocked(c, stateMessage(t.session))
			t.mu.Unlock()

			logf(cfg, "GAMES: Viewer %s joined table %s", c.viewerID, t.id)

		case c := <-t.unreg:
			t.mu.Lock()
			t.lastActive = time.Now()
			if _, ok := t.clients[c]; ok {
				delete(t.clients, c)
				close(c.send)
			}
			t.mu.Unlock()

			logf(cfg, "GAMES: Viewer %s left table %s", c.viewerID, t.id)

		case ev := <-t.events:
			t.handleEvent(cfg, ev)
		}
	}
}

func (t *Table) handleEvent(cfg *Config, ev tableEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastActive = time.Now()

	before := t.session.Step

	if err := t.apply(ev.msg); err != nil {
		logf(cfg, "GAMES: Refused %s on table %s: %v", ev.msg.Type, t.id, err)

		t.sendLocked(ev.client, RejectedMessage{
			Type:    "rejected",
			Action:  ev.msg.Type,
			Message: err.Error(),
		})

		return
	}

	if after := t.session.Step; after != before {
		logf(cfg, "GAMES: Table %s moved from %s to %s", t.id, before, after)

		if after == murder.StepReveal {
			logf(cfg, "GAMES: Dealt %d cards on table %s", len(t.session.Cards), t.id)
		}
	}

	t.broadcastStateLocked()
}

// apply maps a viewer action onto the session.
func (t *Table) apply(msg ClientMessage) error {
	s := t.session

	switch msg.Type {
	case "set_player_count":
		return s.SetPlayerCount(msg.Count)
	case "set_player_name":
		return s.SetPlayerName(msg.Index, msg.Value)
	case "set_weapon":
		return s.SetWeapon(msg.Index, msg.Value)
	case "set_location":
		return s.SetLocation(msg.Index, msg.Value)
	case "advance":
		return s.Advance()
	case "submit":
		return s.Submit()
	case "retreat":
		return s.Retreat()
	case "reset":
		s.Reset()
		return nil
	case "toggle_reveal":
		return s.ToggleReveal(msg.Index)
	default:
		return fmt.Errorf("%w: unknown action %q", murder.ErrInvalidInput, msg.Type)
	}
}

// stateMessage projects the session for viewers. Cards that are face down
// only show whose card they are.
func stateMessage(s *murder.Session) StateMessage {
	v := s.View()

	for i := range v.Cards {
		if v.Cards[i].Revealed {
			continue
		}
		v.Cards[i].Target = ""
		v.Cards[i].Weapon = ""
		v.Cards[i].Location = ""
	}

	return StateMessage{
		Type: "state",
		View: v,
	}
}

// sendLocked assumes t.mu is already held. Viewers that can't keep up are
// dropped.
func (t *Table) sendLocked(c *Client, msg any) {
	if !t.clients[c] {
		return
	}

	select {
	case c.send <- msg:
	default:
		delete(t.clients, c)
		close(c.send)
	}
}

func (t *Table) broadcastStateLocked() {
	msg := stateMessage(t.session)

	for client := range t.clients {
		t.sendLocked(client, msg)
	}
}

// stop ends the run loop and disconnects all viewers (used by reaper).
func (t *Table) stop() {
	t.stopOnce.Do(func() {
		close(t.done)
	})

	t.mu.Lock()
	defer t.mu.Unlock()

	for c := range t.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(t.clients, c)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const viewerCookieName = "murderparty_id"

func getOrSetViewerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(viewerCookieName); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}

	id := uuid.NewString()

	http.SetCookie(w, &http.Cookie{
		Name:     viewerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

func validTableID(id string) bool {
	if len(id) != tableIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if strings.IndexByte(tableIDLetters, id[i]) < 0 {
			return false
		}
	}
	return true
}

// TableManager holds a set of tables keyed by table ID, so each
// /murder/$table is its own isolated game.
type TableManager struct {
	mu          sync.Mutex
	tables      map[string]*Table
	idleTimeout time.Duration
	seed        uint64
}

func newTableManager(ctx context.Context, idleTimeout time.Duration, seed uint64) *TableManager {
	tm := &TableManager{
		tables:      make(map[string]*Table),
		idleTimeout: idleTimeout,
		seed:        seed,
	}
	if idleTimeout > 0 {
		go tm.reaperLoop(ctx)
	}
	go func() {
		<-ctx.Done()
		tm.stopAll()
	}()
	return tm
}

// newRand returns the dealer for a table. A fixed seed gives every table a
// repeatable deal derived from its ID.
func (tm *TableManager) newRand(tableID string) *mrand.Rand {
	if tm.seed == 0 {
		return mrand.New(mrand.NewPCG(mrand.Uint64(), mrand.Uint64()))
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(tableID))

	return mrand.New(mrand.NewPCG(tm.seed, h.Sum64()))
}

func (tm *TableManager) getTable(cfg *Config, tableID string) *Table {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if table, ok := tm.tables[tableID]; ok {
		return table
	}

	table := newTable(tableID, tm.newRand(tableID))
	tm.tables[tableID] = table
	go table.run(cfg)
	return table
}

// newTableID generates a crypto-random table ID and ensures it doesn't
// collide with existing tables.
func (tm *TableManager) newTableID() string {
	for {
		buf := make([]byte, tableIDLength)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, tableIDLength)
		for i := range out {
			out[i] = tableIDLetters[int(buf[i])%len(tableIDLetters)]
		}
		id := string(out)

		tm.mu.Lock()
		_, exists := tm.tables[id]
		tm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// reaperLoop periodically removes tables that have been idle longer than idleTimeout.
func (tm *TableManager) reaperLoop(ctx context.Context) {
	ticker := time.NewTicker(tm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tm.reap(time.Now().Add(-tm.idleTimeout))
		}
	}
}

func (tm *TableManager) reap(cutoff time.Time) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	for id, table := range tm.tables {
		table.mu.RLock()
		last := table.lastActive
		table.mu.RUnlock()

		if last.Before(cutoff) {
			delete(tm.tables, id)
			go table.stop()
		}
	}
}

func (tm *TableManager) stopAll() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	for id, table := range tm.tables {
		delete(tm.tables, id)
		table.stop()
	}
}

// WebSocket handler that picks the table based on :table
func serveWSForManager(cfg *Config, tm *TableManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		tableID := ps.ByName("table")
		if !validTableID(tableID) {
			http.Error(w, "invalid table id", http.StatusNotFound)
			return
		}

		viewerID := getOrSetViewerID(w, r)

		table := tm.getTable(cfg, tableID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		// Hijacked connections keep the server's read and write deadlines.
		_ = conn.NetConn().SetDeadline(time.Time{})
		conn.SetReadLimit(4096)

		client := &Client{
			conn:     conn,
			send:     make(chan any, 8),
			viewerID: viewerID,
		}

		select {
		case table.register <- client:
		case <-table.done:
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(table)
	}
}

func (c *Client) readPump(t *Table) {
	defer func() {
		select {
		case t.unreg <- c:
		case <-t.done:
		}
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		if !clientMessageTypes[msg.Type] {
			continue
		}

		select {
		case t.events <- tableEvent{client: c, msg: msg}:
		case <-t.done:
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code for the current table URL using go-qrcode.
func qrHandler(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !validTableID(ps.ByName("table")) {
			http.Error(w, "invalid table id", http.StatusNotFound)
			return
		}

		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		// We are at /.../:table/qr; strip trailing "/qr" to get the table URL.
		path := strings.TrimSuffix(r.URL.Path, "/qr")

		url := scheme + "://" + r.Host + path

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		securityHeaders(cfg, w)

		if _, err := w.Write(png); err != nil {
			errs <- err
		}
	}
}

func serveTablePage(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !validTableID(ps.ByName("table")) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			securityHeaders(cfg, w)
			w.WriteHeader(http.StatusNotFound)

			_, _ = w.Write([]byte(newPage(cfg, "Table Not Found", "That table does not exist. Start a new game.")))
			return
		}

		data, err := assets.ReadFile("assets/murder/index.html")
		if err != nil {
			errs <- err
			http.Error(w, "page unavailable", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		securityHeaders(cfg, w)

		_ = getOrSetViewerID(w, r)

		if _, err := w.Write(data); err != nil {
			errs <- err
		}
	}
}

// redirectNewTable handles GET /murder by generating a new random table ID
// (with server-side collision detection) and redirecting to /murder/:table.
func redirectNewTable(cfg *Config, path string, tm *TableManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		tableID := tm.newTableID()
		logf(cfg, "GAMES: Created table %s/%s", path, tableID)
		http.Redirect(w, r, cfg.prefix+path+"/"+tableID, http.StatusTemporaryRedirect)
	}
}

// registerMurderGame sets up routes so that:
//   - $path                → redirects to new random table (8-char ID)
//   - $path/:table         → HTML client
//   - $path/:table/ws      → WebSocket for that table
//   - $path/:table/qr      → PNG QR code for that table URL
func registerMurderGame(ctx context.Context, cfg *Config, path string, mux *httprouter.Router, errs chan<- error) *TableManager {
	tm := newTableManager(ctx, cfg.sessionTimeout, cfg.seed)

	mux.GET(cfg.prefix+path, redirectNewTable(cfg, path, tm))
	mux.GET(cfg.prefix+path+"/:table", serveTablePage(cfg, errs))
	mux.GET(cfg.prefix+path+"/:table/ws", serveWSForManager(cfg, tm))
	mux.GET(cfg.prefix+path+"/:table/qr", qrHandler(cfg, errs))

	return tm
}
