package main

import (
	"bufio"
	"bytes"
	"context"
	"educonnect/projection"
	"educonnect/transport/ws"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/kelseyhightower/envconfig"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

type Config struct {
	ServerURL string `envconfig:"CHAT_SERVER_URL" default:"http://localhost:8080"`
	Email     string `envconfig:"CHAT_EMAIL" required:"true"`
	Password  string `envconfig:"CHAT_PASSWORD" required:"true"`
	Room      string `envconfig:"CHAT_ROOM" default:"general"`
	Colours   bool   `envconfig:"CHAT_COLOURS" default:"true"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	color.Enable = config.Colours

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Login over REST, the session cookie lands in the jar
	jar, err := cookiejar.New(nil)
	if err != nil {
		return exitRuntime, err
	}
	if err = login(ctx, &http.Client{Jar: jar, Timeout: 10 * time.Second}, config); err != nil {
		return exitRuntime, err
	}

	// 2. Upgrade with the same cookie
	wsURL, err := websocketURL(config.ServerURL)
	if err != nil {
		return exitConfig, err
	}
	dialer := websocket.Dialer{Jar: jar, HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to %s: %w", wsURL, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	timeline := projection.NewTimeline()
	if err = send(conn, ws.EventJoinRoom, config.Room); err != nil {
		return exitRuntime, err
	}
	color.Info.Printf(">>> Connected to %s, joining %s (Ctrl+C to quit)\n", config.ServerURL, config.Room)
	color.Comment.Println("    /join <room>, /leave, anything else is posted")

	received := make(chan error, 1)
	go func() { received <- receive(conn, timeline) }()
	go prompt(ctx, conn, timeline)

	select {
	case <-ctx.Done():
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return exitOK, nil
	case err = <-received:
		if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			return exitOK, nil
		}
		return exitRuntime, fmt.Errorf("connection lost: %w", err)
	}
}

func login(ctx context.Context, client *http.Client, config Config) error {
	body, err := json.Marshal(map[string]string{"email": config.Email, "password": config.Password})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(config.ServerURL, "/")+"/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		var failure struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		return fmt.Errorf("login refused (%d): %s", resp.StatusCode, failure.Message)
	}
	return nil
}

func websocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url %q: %w", serverURL, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func send(conn *websocket.Conn, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.WriteJSON(ws.Frame{Event: event, Data: raw})
}

// prompt reads stdin until ctx ends. The read pump is the only reader of conn.
func prompt(ctx context.Context, conn *websocket.Conn, timeline *projection.Timeline) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() && ctx.Err() == nil {
		line := strings.TrimSpace(scanner.Text())
		var err error
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "/join "):
			err = send(conn, ws.EventJoinRoom, strings.TrimSpace(strings.TrimPrefix(line, "/join ")))
		case line == "/leave":
			err = send(conn, ws.EventLeaveRoom, timeline.Room())
		default:
			err = send(conn, ws.EventMessage, map[string]string{"conversationId": timeline.Room(), "message": line})
		}
		if err != nil {
			color.Error.Printf("send failed: %v\n", err)
			return
		}
	}
}

func receive(conn *websocket.Conn, timeline *projection.Timeline) error {
	for {
		var frame ws.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return err
		}
		switch frame.Event {
		case ws.EventRoomMessages:
			var history ws.RoomMessagesView
			if err := json.Unmarshal(frame.Data, &history); err != nil {
				continue
			}
			color.Info.Printf("--- joined %s, %d earlier messages\n", history.Room, len(history.Messages))
			for _, m := range timeline.Reset(history) {
				show(m)
			}
		case ws.EventMessage:
			var m ws.MessageView
			if err := json.Unmarshal(frame.Data, &m); err != nil {
				continue
			}
			for _, added := range timeline.Add(m) {
				show(added)
			}
		case ws.EventError:
			var failure ws.ErrorView
			if err := json.Unmarshal(frame.Data, &failure); err == nil {
				color.Error.Printf("[%s] %s\n", failure.Code, failure.Message)
			}
		}
	}
}

func show(m ws.MessageView) {
	header := fmt.Sprintf("[%s] %s", m.Timestamp.Local().Format(time.TimeOnly), m.Sender.Username)
	fmt.Printf("%s: %s\n", color.New(color.BgBlack, color.FgGreen).Render(header), m.Message)
}
