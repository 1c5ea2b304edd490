package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nidhogg/xoxo/internal/a2a"
	"github.com/nidhogg/xoxo/internal/conversation"
	"go.uber.org/zap"
)

func main() {
	server := flag.String("server", "http://localhost:10003", "xoxo agent URL")
	flag.Parse()
	base := strings.TrimSuffix(*server, "/")

	fmt.Println("xoxo CLI")
	fmt.Printf("Agent: %s\n", base)
	fmt.Println("Type 'exit' or 'quit' to leave. Anything else is sent to the agent.")
	fmt.Println("Commands: /health, /partners, /partner <id>, /transcript <id>, /matches, /turns [n], /follow [n], /conversations")
	fmt.Println("---")

	client := a2a.NewClient(65*time.Second, zap.NewNop())
	card, err := client.FetchCard(context.Background(), base)
	if err != nil {
		printError("Failed to fetch agent card: %v", err)
	} else {
		fmt.Printf("Talking to %s: %s\n", card.Name, card.Description)
	}

	agent := conversation.Partner{ID: "agent", URL: base + "/"}
	var threadID string

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Bye!")
			return
		}
		if strings.HasPrefix(input, "/") {
			runCommand(base, input)
			continue
		}

		var reply *conversation.Reply
		if threadID == "" {
			reply, err = client.SendNew(context.Background(), agent, input)
		} else {
			reply, err = client.SendReply(context.Background(), agent, threadID, input)
		}
		if err != nil {
			printError("Request failed: %v", err)
			continue
		}
		threadID = reply.ThreadID
		name := "agent"
		if card != nil {
			name = card.Name
		}
		fmt.Printf("\033[36m[%s]\033[0m %s\n", name, reply.Text)
	}
}

func runCommand(base, input string) {
	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/health":
		printJSON(base + "/api/health")
	case "/partners":
		fetchPartners(base)
	case "/partner":
		if arg == "" {
			printError("usage: /partner <id>")
			return
		}
		printJSON(base + "/api/partners/" + url.PathEscape(arg))
	case "/transcript":
		if arg == "" {
			printError("usage: /transcript <id>")
			return
		}
		body, err := get(base + "/api/partners/" + url.PathEscape(arg) + "/transcript")
		if err != nil {
			printError("%v", err)
			return
		}
		fmt.Print(string(body))
	case "/matches":
		printJSON(base + "/api/matches")
	case "/turns":
		path := base + "/api/turns"
		if arg != "" {
			path += "?limit=" + url.QueryEscape(arg)
		}
		printJSON(path)
	case "/follow":
		n := 10
		if arg != "" {
			v, err := strconv.Atoi(arg)
			if err != nil || v <= 0 {
				printError("usage: /follow [count]")
				return
			}
			n = v
		}
		followTurns(base, n)
	case "/conversations":
		printJSON(base + "/api/conversations")
	default:
		printError("unknown command %s", cmd)
	}
}

func fetchPartners(base string) {
	body, err := get(base + "/api/partners")
	if err != nil {
		printError("Failed to fetch partners: %v", err)
		return
	}
	var partners []struct {
		ID           string `json:"id"`
		URL          string `json:"url"`
		MessageCount int    `json:"message_count"`
		Stage        string `json:"stage"`
	}
	if err := json.Unmarshal(body, &partners); err != nil {
		printError("Failed to parse partners: %v", err)
		return
	}
	if len(partners) == 0 {
		fmt.Println("No partners known yet.")
		return
	}
	fmt.Println("Partners:")
	for _, p := range partners {
		fmt.Printf("  %s (%s) messages=%d stage=%s\n", p.ID, p.URL, p.MessageCount, p.Stage)
	}
}

// followTurns prints live turns from the agent's event stream until n have
// arrived.
func followTurns(base string, n int) {
	resp, err := http.Get(base + "/api/turns/stream")
	if err != nil {
		printError("Failed to follow turns: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		printError("Server error (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
		return
	}

	fmt.Printf("Following %d turns...\n", n)
	scanner := bufio.NewScanner(resp.Body)
	for seen := 0; seen < n && scanner.Scan(); {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var ev struct {
			Partner  string `json:"partner"`
			Stage    string `json:"stage"`
			Outgoing string `json:"outgoing"`
			Reply    string `json:"reply"`
		}
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}
		seen++
		fmt.Printf("\033[36m[%s → %s]\033[0m %s\n", ev.Stage, ev.Partner, ev.Outgoing)
		if ev.Reply != "" {
			fmt.Printf("  \033[33m%s:\033[0m %s\n", ev.Partner, ev.Reply)
		}
	}
}

func printJSON(u string) {
	body, err := get(u)
	if err != nil {
		printError("%v", err)
		return
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		fmt.Println(string(body))
		return
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}

func get(u string) ([]byte, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(u)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("server error (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[0m\n", args...)
}
