package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mahaj/chatstra/pkg/model"
)

type LoginResponse struct {
	Token string `json:"token"`
}

type envelope struct {
	Event model.EventType `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type outEnvelope struct {
	Event model.EventType `json:"event"`
	Data  any             `json:"data"`
}

func login(apiAddr, userID string) (string, error) {
	reqBody, _ := json.Marshal(map[string]string{"user_id": userID})
	resp, err := http.Post(apiAddr+"/login", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("login failed: %s", string(body))
	}

	var loginResp LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return "", err
	}

	return loginResp.Token, nil
}

func send(c *websocket.Conn, event model.EventType, data any) error {
	b, err := json.Marshal(outEnvelope{Event: event, Data: data})
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, b)
}

func printIncoming(env *envelope) {
	switch env.Event {
	case model.EventReceiveMessage, model.EventReceiveGroupMessage:
		var msg model.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return
		}
		where := ""
		if msg.GroupID != "" {
			where = " [" + msg.GroupID + "]"
		}
		fmt.Printf("\r%s%s: %s (id=%d)\n> ", msg.Sender, where, msg.Content, msg.ID)

	case model.EventUserTyping:
		var p model.TypingPayload
		json.Unmarshal(env.Data, &p)
		fmt.Printf("\r%s is typing...\n> ", p.Sender)

	case model.EventUserStoppedTyping:
		var p model.TypingPayload
		json.Unmarshal(env.Data, &p)
		fmt.Printf("\r%s stopped typing\n> ", p.Sender)

	case model.EventMessageSent:
		var r model.SendResult
		json.Unmarshal(env.Data, &r)
		fmt.Printf("\rsent: id=%d status=%s\n> ", r.MessageID, r.Status)

	case model.EventSendFailed:
		var f model.SendFailure
		json.Unmarshal(env.Data, &f)
		fmt.Printf("\rsend failed: %s\n> ", f.Reason)

	case model.EventMessageDelivered, model.EventMessageRead:
		var p model.StatusPayload
		json.Unmarshal(env.Data, &p)
		fmt.Printf("\rmessage %d is now %s\n> ", p.MessageID, p.Status)

	default:
		fmt.Printf("\r%s: %s\n> ", env.Event, string(env.Data))
	}
}

func main() {
	serverAddr := flag.String("addr", "localhost:8080", "gateway service address")
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	userID := flag.String("user", "user1", "user id")
	dmUser := flag.String("to", "", "user id to dm")
	groupID := flag.String("group", "", "group id to chat in (overrides -to)")
	flag.Parse()

	if *dmUser == "" && *groupID == "" {
		log.Fatal("need -to <user> or -group <id>")
	}

	// 1. Login to get token
	log.Printf("Logging in as %s...", *userID)
	token, err := login(*apiAddr, *userID)
	if err != nil {
		log.Fatal("Login failed:", err)
	}
	log.Printf("Login successful. Token: %s...", token[:10])

	// 2. Connect to WebSocket with token
	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/ws"}
	log.Printf("connecting to %s", u.String())

	header := http.Header{}
	header.Add("Authorization", "Bearer "+token)

	c, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// 3. Read incoming events; acknowledge delivery of received messages.
	go func() {
		defer close(done)
		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				log.Println("read:", err)
				return
			}

			var env envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				log.Printf("Received raw: %s", raw)
				continue
			}

			if env.Event == model.EventReceiveMessage {
				var msg model.Message
				if err := json.Unmarshal(env.Data, &msg); err == nil {
					send(c, model.EventMessageDelivered, map[string]int64{"id": msg.ID})
				}
			}

			printIncoming(&env)
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	target := func() map[string]string {
		if *groupID != "" {
			return map[string]string{"group_id": *groupID}
		}
		return map[string]string{"receiver": *dmUser}
	}

	// 4. Read from stdin and send events
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			text := scanner.Text()
			if text == "" {
				fmt.Print("> ")
				continue
			}

			switch {
			case text == "/quit":
				close(interrupt)
				return

			case text == "/typing":
				send(c, model.EventTyping, target())

			case text == "/stop":
				send(c, model.EventStopTyping, target())

			case strings.HasPrefix(text, "/read "):
				id, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(text, "/read ")), 10, 64)
				if err != nil {
					fmt.Println("usage: /read <message id>")
				} else {
					send(c, model.EventMessageRead, map[string]int64{"id": id})
				}

			default:
				data := target()
				data["content"] = text
				if err := send(c, model.EventSendMessage, data); err != nil {
					log.Println("write:", err)
					return
				}
			}
			fmt.Print("> ")
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("interrupt")

			// Cleanly close the connection by sending a close message and then
			// waiting (with timeout) for the server to close the connection.
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("write close:", err)
				return
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}
