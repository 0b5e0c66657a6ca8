package ws

import (
	"encoding/base64"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/rs/zerolog/log"

	"github.com/kiliankoe/semadash/internal/capture"
	"github.com/kiliankoe/semadash/internal/game"
)

// Server is the render boundary: the browser does camera capture and
// drawing, this gateway owns nothing but translation between socket events
// and the game controller. It also feeds captured frames into the latest-
// frame holder the detection loop reads from.
type Server struct {
	ctrl   *game.Controller
	frames *capture.Latest

	mu            sync.Mutex
	members       map[string]socketio.Conn
	recognitionUp bool
}

func New(ctrl *game.Controller, frames *capture.Latest) *Server {
	return &Server{ctrl: ctrl, frames: frames, members: make(map[string]socketio.Conn), recognitionUp: true}
}

// SetRecognitionUp records whether the recognition service answered its
// last liveness probe. Clients connecting while it is down get told so
// right after their first snapshot.
func (srv *Server) SetRecognitionUp(ok bool) {
	srv.mu.Lock()
	srv.recognitionUp = ok
	srv.mu.Unlock()
}

// connectNotice returns the advisory a fresh connection should see, if any.
func (srv *Server) connectNotice() (string, bool) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.recognitionUp {
		return "", false
	}
	return "AI detection service unavailable", true
}

// Mount attaches the Socket.IO server with all game events to the given
// Gin engine and registers itself as the controller's observer.
func (srv *Server) Mount(r *gin.Engine) *socketio.Server {
	io := socketio.NewServer(nil)

	io.OnConnect("/", func(s socketio.Conn) error {
		srv.addMember(s)
		log.Info().Str("sid", s.ID()).Msg("socket connected")
		s.Emit("game:state", srv.ctrl.State().Snapshot())
		if msg, ok := srv.connectNotice(); ok {
			s.Emit("game:notice", map[string]any{"kind": "error", "message": msg})
		}
		return nil
	})

	io.OnEvent("/", "player:add", func(s socketio.Conn, payload struct {
		Name string `json:"name"`
	}) map[string]any {
		if err := srv.ctrl.AddPlayer(strings.TrimSpace(payload.Name)); err != nil {
			return srv.err(s, err)
		}
		return map[string]any{"ok": true}
	})

	io.OnEvent("/", "player:remove", func(s socketio.Conn, payload struct {
		Name string `json:"name"`
	}) map[string]any {
		if err := srv.ctrl.RemovePlayer(payload.Name); err != nil {
			return srv.err(s, err)
		}
		return map[string]any{"ok": true}
	})

	io.OnEvent("/", "practice:start", func(s socketio.Conn) map[string]any {
		srv.ctrl.StartPractice()
		return map[string]any{"ok": true}
	})

	io.OnEvent("/", "practice:next", func(s socketio.Conn) map[string]any {
		if err := srv.ctrl.NextPracticeLetter(); err != nil {
			return srv.err(s, err)
		}
		return map[string]any{"ok": true}
	})

	io.OnEvent("/", "single:prepare", func(s socketio.Conn) map[string]any {
		srv.ctrl.PrepareSinglePlayer()
		return map[string]any{"ok": true}
	})

	io.OnEvent("/", "single:start", func(s socketio.Conn) map[string]any {
		if err := srv.ctrl.StartSinglePlayer(); err != nil {
			return srv.err(s, err)
		}
		return map[string]any{"ok": true}
	})

	io.OnEvent("/", "multi:setup", func(s socketio.Conn) map[string]any {
		srv.ctrl.EnterMultiplayerSetup()
		return map[string]any{"ok": true}
	})

	io.OnEvent("/", "multi:start", func(s socketio.Conn) map[string]any {
		if err := srv.ctrl.StartTournament(); err != nil {
			return srv.err(s, err)
		}
		return map[string]any{"ok": true}
	})

	io.OnEvent("/", "turn:start", func(s socketio.Conn) map[string]any {
		if err := srv.ctrl.StartTurn(); err != nil {
			return srv.err(s, err)
		}
		return map[string]any{"ok": true}
	})

	io.OnEvent("/", "turn:skip", func(s socketio.Conn) map[string]any {
		if err := srv.ctrl.SkipTurn(); err != nil {
			return srv.err(s, err)
		}
		return map[string]any{"ok": true}
	})

	io.OnEvent("/", "game:stop", func(s socketio.Conn) map[string]any {
		srv.ctrl.Stop()
		srv.frames.Clear()
		return map[string]any{"ok": true}
	})

	io.OnEvent("/", "history:clear", func(s socketio.Conn) map[string]any {
		srv.ctrl.ClearHistory()
		return map[string]any{"ok": true}
	})

	// frame carries one camera still, either plain base64 or a data URI.
	io.OnEvent("/", "frame", func(s socketio.Conn, payload struct {
		Image string `json:"image"`
	}) {
		data := payload.Image
		if i := strings.IndexByte(data, ','); i >= 0 && strings.HasPrefix(data, "data:") {
			data = data[i+1:]
		}
		raw, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			log.Debug().Err(err).Msg("discarding undecodable frame")
			return
		}
		srv.frames.Set(raw)
	})

	io.OnEvent("/", "game:state", func(s socketio.Conn) {
		s.Emit("game:state", srv.ctrl.State().Snapshot())
	})

	io.OnError("/", func(s socketio.Conn, e error) {
		log.Error().Str("sid", s.ID()).Err(e).Msg("socket error")
	})
	io.OnDisconnect("/", func(s socketio.Conn, reason string) {
		srv.removeMember(s)
		log.Info().Str("sid", s.ID()).Str("reason", reason).Msg("socket disconnected")
	})

	go io.Serve()

	r.GET("/socket.io/*any", gin.WrapH(io))
	r.POST("/socket.io/*any", gin.WrapH(io))
	r.OPTIONS("/socket.io/*any", func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Status(http.StatusNoContent)
	})

	srv.ctrl.SetObserver(srv)
	return io
}

// StateChanged implements game.Observer: every connection gets the fresh
// snapshot.
func (srv *Server) StateChanged() {
	snap := srv.ctrl.State().Snapshot()
	srv.broadcast("game:state", snap)
}

// Detection implements game.Observer with per-tick match feedback.
func (srv *Server) Detection(out game.Outcome) {
	srv.broadcast("game:detection", out)
}

// Notice implements game.Observer. The renderer shows these as timed,
// auto-dismissing advisories.
func (srv *Server) Notice(kind, message string) {
	srv.broadcast("game:notice", map[string]any{"kind": kind, "message": message})
}

func (srv *Server) broadcast(event string, payload any) {
	srv.mu.Lock()
	conns := make([]socketio.Conn, 0, len(srv.members))
	for _, c := range srv.members {
		conns = append(conns, c)
	}
	srv.mu.Unlock()
	for _, c := range conns {
		c.Emit(event, payload)
	}
}

func (srv *Server) addMember(c socketio.Conn) {
	srv.mu.Lock()
	srv.members[c.ID()] = c
	srv.mu.Unlock()
}

func (srv *Server) removeMember(c socketio.Conn) {
	srv.mu.Lock()
	delete(srv.members, c.ID())
	srv.mu.Unlock()
}

func (srv *Server) err(s socketio.Conn, err error) map[string]any {
	s.Emit("game:notice", map[string]any{"kind": "error", "message": err.Error()})
	return map[string]any{"error": err.Error()}
}
