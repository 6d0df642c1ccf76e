// Command feedwatch tails the live feed over WebSocket and prints each
// event as it arrives. Useful for watching fan-out while exercising the
// API by hand.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	host := flag.String("host", "localhost:8080", "API server host")
	email := flag.String("email", "", "User email to log in with")
	password := flag.String("password", "", "User password")
	token := flag.String("token", "", "JWT to use directly, skipping login")
	chatID := flag.String("chat", "", "Watch a chat room instead of the global feed")
	flag.Parse()

	jwt := *token
	if jwt == "" {
		if *email == "" || *password == "" {
			log.Fatal("Either -token or -email and -password are required")
		}
		var err error
		jwt, err = login(*host, *email, *password)
		if err != nil {
			log.Fatalf("Login failed: %v", err)
		}
		log.Println("Logged in")
	}

	path := "/api/ws/feed"
	if *chatID != "" {
		path = "/api/ws/chats/" + *chatID
	}
	u := url.URL{Scheme: "ws", Host: *host, Path: path, RawQuery: "token=" + url.QueryEscape(jwt)}

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial %s failed: %v", u.String(), err)
	}
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	defer func() { _ = conn.Close() }()

	log.Printf("Watching %s", path)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				log.Printf("Read error: %v", err)
				return
			}
			printEvent(message)
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case <-done:
	case <-interrupt:
		log.Println("Closing connection...")
		err := conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			return
		}
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}

func login(host, email, password string) (string, error) {
	loginURL := fmt.Sprintf("http://%s/api/auth/login", host)
	payload := map[string]string{
		"email":    email,
		"password": password,
	}
	body, _ := json.Marshal(payload)

	resp, err := http.Post(loginURL, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login failed with status %d", resp.StatusCode)
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Token, nil
}

func printEvent(raw []byte) {
	var event struct {
		Type   string `json:"type"`
		PostID string `json:"post_id,omitempty"`
		ChatID string `json:"chat_id,omitempty"`
		UserID string `json:"user_id,omitempty"`
		At     string `json:"at,omitempty"`
	}
	if err := json.Unmarshal(raw, &event); err != nil || event.Type == "" {
		fmt.Println(string(raw))
		return
	}
	line := event.At + " " + event.Type
	if event.PostID != "" {
		line += " post=" + event.PostID
	}
	if event.ChatID != "" {
		line += " chat=" + event.ChatID
	}
	if event.UserID != "" {
		line += " user=" + event.UserID
	}
	fmt.Println(line)
}
