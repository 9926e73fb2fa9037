// Command gateway_chat is a terminal client for manual testing: it logs in
// (or registers), opens a gateway connection, prints incoming events, and
// sends each stdin line as a message to the chosen channel.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"

	"github.com/concord-im/concord/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("gateway_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "http://localhost:8000", "server base URL")
	username := flag.String("user", "cli-user", "username")
	discriminator := flag.Int("discriminator", 0, "discriminator (0 registers a new account)")
	password := flag.String("password", "cli-password", "password")
	channel := flag.String("channel", "", "channel id to send stdin lines to")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	token, err := authenticate(ctx, *addr, *username, *discriminator, *password)
	if err != nil {
		return err
	}

	wsURL := strings.Replace(*addr, "http", "ws", 1) + "/gateway"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	handshake, err := json.Marshal(map[string]proto.Handshake{"Handshake": {Token: token}})
	if err != nil {
		return fmt.Errorf("marshal handshake: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, handshake); err != nil {
		return fmt.Errorf("send handshake: %w", err)
	}

	go func() {
		defer cancel()
		for {
			_, frame, err := conn.Read(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("read: %v", err)
				}
				return
			}
			fmt.Printf("<- %s\n", frame)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if *channel == "" {
			log.Println("no -channel set, dropping input")
			continue
		}
		if err := sendMessage(ctx, *addr, token, *channel, line); err != nil {
			log.Printf("send: %v", err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return scanner.Err()
}

// authenticate logs in when a discriminator is given, otherwise registers a
// fresh account.
func authenticate(ctx context.Context, addr, username string, discriminator int, password string) (string, error) {
	path := "/api/users"
	body := map[string]any{"username": username, "password": password}
	if discriminator != 0 {
		path = "/api/login"
		body["discriminator"] = discriminator
	}

	var reply struct {
		Token         string `json:"token"`
		Username      string `json:"username"`
		Discriminator int    `json:"discriminator"`
		Error         string `json:"error"`
	}
	if err := postJSON(ctx, addr+path, "", body, &reply); err != nil {
		return "", err
	}
	if reply.Error != "" {
		return "", fmt.Errorf("auth: %s", reply.Error)
	}
	log.Printf("authenticated as %s:%d", reply.Username, reply.Discriminator)
	return reply.Token, nil
}

func sendMessage(ctx context.Context, addr, token, channelID, content string) error {
	return postJSON(ctx, addr+"/api/messages", token, map[string]string{
		"channel_id": channelID,
		"content":    content,
	}, nil)
}

func postJSON(ctx context.Context, url, token string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
