package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// quizGame bundles the long-lived pieces of the music quiz: room registry,
// connection hub, album catalogue, and clue source.
type quizGame struct {
	ctx     context.Context
	rooms   *RoomManager
	hub     *Hub
	titles  titleStore
	clues   *clueSource
	limiter *ipLimiter
}

// registerQuizGame wires the music quiz into the router: REST room
// management, per-room QR codes, and the game websocket.
func registerQuizGame(ctx context.Context, cfg *Config, mux *httprouter.Router) (*quizGame, error) {
	titles, err := openTitleStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	hub := newHub()

	q := &quizGame{
		ctx:     ctx,
		rooms:   newRoomManager(cfg, hub),
		hub:     hub,
		titles:  titles,
		clues:   newClueSource(titles, newSaavnProvider(cfg)),
		limiter: newIPLimiter(cfg.maxConnsPerIP),
	}

	go q.rooms.reaper(ctx, cfg)

	go func() {
		<-ctx.Done()
		q.rooms.shutdown()
		titles.close()
	}()

	mux.POST("/api/rooms", serveCreateRoom(cfg, q))
	mux.GET("/api/rooms", serveListRooms(cfg, q))
	mux.GET("/rooms/:roomid", serveRoomPage(cfg, q))
	mux.GET("/rooms/:roomid/qr", serveRoomQR(cfg, q))
	mux.GET("/ws/:roomid/:playerid/:name", serveWS(cfg, q))

	return q, nil
}

type createRoomRequest struct {
	HostName string `json:"host_name"`
	Password string `json:"password"`
}

type createRoomResponse struct {
	RoomID string `json:"room_id"`
	HostID int    `json:"host_id"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func serveCreateRoom(cfg *Config, q *quizGame) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(cfg, w)

		var req createRoomRequest

		if err := json.NewDecoder(io.LimitReader(r.Body, maxMessageSize)).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")

			return
		}

		hostName := sanitizeName(req.HostName)
		if hostName == "" {
			writeJSONError(w, http.StatusBadRequest, "host_name is required")

			return
		}

		password := strings.TrimSpace(req.Password)
		if utf8.RuneCountInString(password) > maxPasswordLength {
			writeJSONError(w, http.StatusBadRequest, "password too long")

			return
		}

		hostID := newPlayerID()

		sess, err := q.rooms.create(cfg, hostID, hostName, password)
		if err != nil {
			writeJSONError(w, http.StatusServiceUnavailable, "server is at room capacity")

			return
		}

		writeJSON(w, http.StatusCreated, createRoomResponse{
			RoomID: sess.id,
			HostID: hostID,
		})
	}
}

func serveListRooms(cfg *Config, q *quizGame) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(cfg, w)

		writeJSON(w, http.StatusOK, q.rooms.listPublic(cfg))
	}
}

// serveRoomQR generates a PNG QR code for a room's join URL using go-qrcode.
func serveRoomQR(cfg *Config, q *quizGame) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := ps.ByName("roomid")
		if q.rooms.lookup(roomID) == nil {
			http.Error(w, "room not found", http.StatusNotFound)

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

		url := scheme + "://" + r.Host + "/rooms/" + roomID

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)

			return
		}

		securityHeaders(cfg, w)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

// serveRoomPage renders the landing page a scanned room QR code opens.
func serveRoomPage(cfg *Config, q *quizGame) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := ps.ByName("roomid")

		sess := q.rooms.lookup(roomID)
		if sess == nil {
			http.Error(w, "room not found", http.StatusNotFound)

			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		body := sess.hostName() + " invited you to room " + roomID +
			". Open Quizbox and enter the code to join."

		_, _ = io.WriteString(w, newPage("Quizbox room "+roomID, body))
	}
}

// serveWS admits a player into a room and runs their read loop until the
// connection drops.
func serveWS(cfg *Config, q *quizGame) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := ps.ByName("roomid")
		if !validRoomID(roomID) {
			http.Error(w, "invalid room id", http.StatusForbidden)

			return
		}

		playerID, err := strconv.Atoi(ps.ByName("playerid"))
		if err != nil || !validPlayerID(playerID) {
			http.Error(w, "invalid player id", http.StatusForbidden)

			return
		}

		name := sanitizeName(ps.ByName("name"))
		if name == "" {
			http.Error(w, "invalid player name", http.StatusForbidden)

			return
		}

		addr := realIP(r)
		if !q.limiter.acquire(addr) {
			http.Error(w, "too many connections from this address", http.StatusForbidden)

			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			q.limiter.release(addr)
			logf(cfg, "ERROR: WebSocket upgrade failed for %s: %v", addr, err)

			return
		}

		logf(cfg, "SERVE: WebSocket connection room=%s player=%d name=%q from %s",
			roomID, playerID, name, addr)

		sess := q.rooms.lookup(roomID)
		if sess == nil {
			refuse(conn, "Room not found")
			q.limiter.release(addr)

			return
		}

		if !sess.verifyPassword(r.URL.Query().Get("password")) {
			refuse(conn, "Invalid password for this room")
			q.limiter.release(addr)

			return
		}

		if q.hub.get(roomID, playerID) != nil || !sess.attachPlayer(playerID, name) {
			refuse(conn, "Unable to join room")
			q.limiter.release(addr)

			return
		}

		c := newClient(conn, roomID, playerID, name, addr)
		q.hub.register(c)
		go c.writePump()

		q.broadcastState(sess)

		q.readLoop(cfg, c, sess)

		q.dropClient(cfg, c, sess)
	}
}

// refuse reports an admission failure on a socket that never joined the hub.
func refuse(conn *websocket.Conn, message string) {
	_ = conn.WriteJSON(errorMessage(message))
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message),
		time.Now().Add(time.Second))
	_ = conn.Close()
}

func (q *quizGame) broadcastState(sess *Session) {
	q.hub.broadcast(sess.id, stateMessage(sess.snapshot()))
}

func (q *quizGame) readLoop(cfg *Config, c *client, sess *Session) {
	defer c.conn.Close()

	// Hard backstop well above the soft ceiling; oversized frames kill the
	// connection instead of the server.
	c.conn.SetReadLimit(8 * maxMessageSize)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		if len(data) > maxMessageSize {
			q.hub.unicast(c, errorMessage("Message too large"))

			continue
		}

		var msg clientAction
		if err := json.Unmarshal(data, &msg); err != nil {
			q.hub.unicast(c, errorMessage("Invalid message format"))

			continue
		}

		if msg.Action == "" || len(msg.Action) > maxActionLength {
			continue
		}

		logf(cfg, "SERVE: Action %q from player %d in room %s", msg.Action, c.playerID, c.roomID)

		q.dispatch(cfg, c, sess, msg)
	}
}

func (q *quizGame) dispatch(cfg *Config, c *client, sess *Session, msg clientAction) {
	switch msg.Action {
	case "set_ready":
		if msg.IsReady == nil {
			return
		}

		sess.setReady(c.playerID, *msg.IsReady)
		q.broadcastState(sess)

	case "kick_player":
		q.kickPlayer(cfg, c, sess, msg)

	case "update_settings":
		q.updateSettings(c, sess, msg)

	case "start_game":
		q.startGame(cfg, c, sess)

	case "guess":
		q.handleGuess(c, sess, msg.Text)

	case "chat":
		text := sanitizeText(msg.Text)
		if text == "" {
			return
		}

		q.hub.broadcast(c.roomID, ChatMessage{
			Action:     "chat_message",
			PlayerName: c.name,
			Text:       text,
		})

	case "get_suggestions":
		q.handleSuggestions(cfg, c, msg.Query)
	}
}

func (q *quizGame) kickPlayer(cfg *Config, c *client, sess *Session, msg clientAction) {
	if !sess.isHost(c.playerID) || msg.PlayerID == nil || !validPlayerID(*msg.PlayerID) {
		return
	}

	target := *msg.PlayerID
	if victim := q.hub.get(c.roomID, target); victim != nil {
		victim.close(websocket.CloseNormalClosure, "Kicked by host")
	}

	sess.removePlayer(target)
	logf(cfg, "ROOMS: Player %d kicked from room %s by host", target, c.roomID)

	q.broadcastState(sess)
}

func (q *quizGame) updateSettings(c *client, sess *Session, msg clientAction) {
	if !sess.isHost(c.playerID) {
		return
	}

	if msg.Settings == nil || !msg.Settings.valid() {
		q.hub.unicast(c, errorMessage("Invalid settings format"))

		return
	}

	if !sess.updateSettings(*msg.Settings) {
		q.hub.unicast(c, errorMessage("Cannot change settings during game"))

		return
	}

	q.hub.broadcast(c.roomID, SettingsMessage{
		Action:   "settings_updated",
		Settings: sess.settings(),
	})
	q.broadcastState(sess)
}

func (q *quizGame) startGame(cfg *Config, c *client, sess *Session) {
	if !sess.isHost(c.playerID) {
		return
	}

	gameCtx, cancel := context.WithCancel(q.ctx)
	if !sess.startGame(cancel) {
		cancel()

		return
	}

	go runGame(gameCtx, cfg, sess, q.hub, q.clues)

	q.broadcastState(sess)
}

func (q *quizGame) handleGuess(c *client, sess *Session, text string) {
	verdict, points := sess.recordGuess(c.playerID, text)
	if verdict == guessRejected {
		return
	}

	q.hub.unicast(c, GuessResultMessage{
		Action:       "guess_result",
		Correct:      verdict == guessCorrect,
		PointsEarned: points,
	})
	q.broadcastState(sess)
}

func (q *quizGame) handleSuggestions(cfg *Config, c *client, query string) {
	ctx, cancel := context.WithTimeout(q.ctx, timeout)
	defer cancel()

	suggestions, err := q.titles.suggest(ctx, query)
	if err != nil {
		logf(cfg, "ERROR: Suggestion lookup failed: %v", err)
	}
	if suggestions == nil {
		suggestions = []string{}
	}

	q.hub.unicast(c, SuggestionsMessage{
		Action:      "suggestions",
		Suggestions: suggestions,
	})
}

// dropClient unwinds a departed connection and tears the room down when it
// was the last one.
func (q *quizGame) dropClient(cfg *Config, c *client, sess *Session) {
	q.limiter.release(c.addr)

	sess.removePlayer(c.playerID)
	q.hub.unregister(c.roomID, c.playerID)

	if sess.playerCount() == 0 {
		sess.cancelGame()
		q.rooms.remove(cfg, c.roomID)
		q.hub.closeRoom(c.roomID)

		logf(cfg, "ROOMS: Room %s is empty, closing", c.roomID)

		return
	}

	q.broadcastState(sess)
}
