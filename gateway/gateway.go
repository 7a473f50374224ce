// Package gateway exposes the webchat transport: a websocket endpoint for
// inbound chat events and the outbound sender the orchestrator replies
// through.
package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/wiralab/wira/contacts"
	"github.com/wiralab/wira/orchestrator"
	"github.com/wiralab/wira/pkg/config"
	"github.com/wiralab/wira/pkg/llm"
)

// Inbound is one chat event from a connected client
type Inbound struct {
	ConversationKey string `json:"conversationKey"`
	SenderNumber    string `json:"senderNumber"`
	SenderName      string `json:"senderName"`
	GroupID         string `json:"groupId,omitempty"`
	Text            string `json:"text"`
	Media           string `json:"media,omitempty"` // base64 payload
	MediaMime       string `json:"mediaMime,omitempty"`
	MediaKind       string `json:"mediaKind,omitempty"` // "image", "voice", "contact"
	Mentioned       bool   `json:"mentioned,omitempty"`
	ReplyToBot      bool   `json:"replyToBot,omitempty"`
	Broadcast       bool   `json:"broadcast,omitempty"`
}

// Outbound is one reply pushed to connected clients
type Outbound struct {
	ConversationKey string `json:"conversationKey"`
	Text            string `json:"text"`
}

// Handler consumes inbound messages
type Handler interface {
	HandleInbound(msg orchestrator.Message) bool
}

// Server is the websocket gateway. It implements orchestrator.Sender.
type Server struct {
	cfg     config.GatewayConfig
	bot     config.BotConfig
	handler Handler

	mu    sync.Mutex
	conns map[*wsConn]struct{}

	httpSrv *http.Server
}

type wsConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex // serializes writes, reads stay on the read loop
	keys    map[string]bool
	keysMu  sync.Mutex
}

// NewServer creates the gateway
func NewServer(cfg config.GatewayConfig, bot config.BotConfig, handler Handler) *Server {
	return &Server{
		cfg:     cfg,
		bot:     bot,
		handler: handler,
		conns:   make(map[*wsConn]struct{}),
	}
}

// Start serves HTTP until the listener fails or Shutdown is called
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpSrv = &http.Server{
		Addr:        addr,
		Handler:     s.Routes(),
		ReadTimeout: s.cfg.ReadTimeout,
	}
	log.Printf("[OK] Gateway: listening on %s", addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Routes returns the HTTP mux, split out for tests
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.cfg.MaxWSConns > 0 && len(s.conns) >= s.cfg.MaxWSConns {
		s.mu.Unlock()
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	s.mu.Unlock()

	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Printf("[WARN] Gateway: accept: %v", err)
		return
	}
	c := &wsConn{ws: ws, keys: make(map[string]bool)}

	s.mu.Lock()
	s.conns[c] = struct{}{}
	total := len(s.conns)
	s.mu.Unlock()
	log.Printf("[Gateway] Client connected (%d active)", total)

	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		ws.Close(websocket.StatusNormalClosure, "")
	}()

	s.readLoop(r.Context(), c)
}

func (s *Server) readLoop(ctx context.Context, c *wsConn) {
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			return
		}
		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			log.Printf("[WARN] Gateway: bad inbound payload: %v", err)
			continue
		}
		if in.ConversationKey == "" {
			continue
		}
		c.subscribe(in.ConversationKey)
		s.handler.HandleInbound(s.toMessage(in))
	}
}

// toMessage converts a wire event into an orchestrator message
func (s *Server) toMessage(in Inbound) orchestrator.Message {
	msg := orchestrator.Message{
		ConversationKey: in.ConversationKey,
		SenderNumber:    in.SenderNumber,
		SenderName:      in.SenderName,
		GroupID:         in.GroupID,
		Text:            in.Text,
		MediaKind:       in.MediaKind,
		FromOwner:       s.bot.OwnerNumber != "" && contacts.SameNumber(in.SenderNumber, s.bot.OwnerNumber),
		Mentioned:       in.Mentioned,
		ReplyToBot:      in.ReplyToBot,
		Broadcast:       in.Broadcast,
		Timestamp:       time.Now(),
	}
	if in.Media != "" {
		data, err := base64.StdEncoding.DecodeString(in.Media)
		if err != nil {
			log.Printf("[WARN] Gateway: bad media payload: %v", err)
		} else {
			msg.Media = &llm.Media{MimeType: in.MediaMime, Data: data}
		}
	}
	return msg
}

// Send implements orchestrator.Sender: the reply goes to every connection
// that has spoken on the conversation.
func (s *Server) Send(conversationKey, text string) error {
	payload, err := json.Marshal(Outbound{ConversationKey: conversationKey, Text: text})
	if err != nil {
		return err
	}

	s.mu.Lock()
	var targets []*wsConn
	for c := range s.conns {
		if c.subscribed(conversationKey) {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	if len(targets) == 0 {
		log.Printf("[WARN] Gateway: no connection for %s, reply dropped", conversationKey)
		return nil
	}

	timeout := s.cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	for _, c := range targets {
		if err := c.write(payload, timeout); err != nil {
			log.Printf("[WARN] Gateway: write to client: %v", err)
		}
	}
	return nil
}

func (c *wsConn) subscribe(key string) {
	c.keysMu.Lock()
	c.keys[key] = true
	c.keysMu.Unlock()
}

func (c *wsConn) subscribed(key string) bool {
	c.keysMu.Lock()
	defer c.keysMu.Unlock()
	return c.keys[key]
}

func (c *wsConn) write(payload []byte, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.Write(ctx, websocket.MessageText, payload)
}
