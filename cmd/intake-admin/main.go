// ABOUTME: Operator CLI for the intake-gateway HTTP API.
// ABOUTME: Lists conversations, reads threads, sends replies, and mints tokens.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
)

const banner = `
  _       _        _                        _           _
 (_)_ __ | |_ __ _| | _____        __ _  __| |_ __ ___ (_)_ __
 | | '_ \| __/ _' | |/ / _ \_____ / _' |/ _' | '_ ' _ \| | '_ \
 | | | | | || (_| |   <  __/_____| (_| | (_| | | | | | | | | | |
 |_|_| |_|\__\__,_|_|\_\___|      \__,_|\__,_|_| |_| |_|_|_| |_|
`

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	baseURL := os.Getenv("INTAKE_GATEWAY_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	c := &client{
		baseURL: baseURL,
		secret:  os.Getenv("INTAKE_OPERATOR_SECRET"),
		token:   os.Getenv("INTAKE_TOKEN"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "chats":
		err = cmdChats(c)
	case "thread":
		err = cmdThread(c, args)
	case "send":
		err = cmdSend(c, args)
	case "send-media":
		err = cmdSendMedia(c, args)
	case "token":
		err = cmdToken(c, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: intake-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  chats                              List recent conversations")
	fmt.Println("  thread <number> [limit]            Show a conversation's history")
	fmt.Println("  send <number> <text...>            Send a text reply")
	fmt.Println("  send-media <number> <image|document> <link> [caption]")
	fmt.Println("                                     Send a media file by link")
	fmt.Println("  token <operator> [ttl]             Mint an operator bearer token")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  INTAKE_GATEWAY_URL       Gateway base URL (default: http://localhost:8080)")
	fmt.Println("  INTAKE_OPERATOR_SECRET   Shared operator secret")
	fmt.Println("  INTAKE_TOKEN             Minted bearer token (alternative to the secret)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  export INTAKE_OPERATOR_SECRET=\"...\"")
	fmt.Println("  intake-admin chats")
	fmt.Println("  intake-admin thread 5491170442131")
	fmt.Println("  intake-admin send 5491170442131 'Su estudio está listo para retirar'")
	fmt.Println()
}

// client calls the gateway's operator API, authenticating with the shared
// secret or a minted bearer token.
type client struct {
	baseURL string
	secret  string
	token   string
	http    *http.Client
}

func (c *client) do(method, path string, query url.Values, body any, out any) error {
	if c.secret == "" && c.token == "" {
		return fmt.Errorf("INTAKE_OPERATOR_SECRET or INTAKE_TOKEN is required")
	}

	if query == nil {
		query = url.Values{}
	}
	if c.token == "" {
		query.Set("secret", c.secret)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+query.Encode(), reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling gateway: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("gateway: %s (status %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func cmdChats(c *client) error {
	var resp struct {
		Chats []struct {
			ConversationKey string    `json:"conversation_key"`
			LastActivity    time.Time `json:"last_activity"`
		} `json:"chats"`
	}
	if err := c.do(http.MethodGet, "/api/operator/chats", nil, nil, &resp); err != nil {
		return err
	}

	if len(resp.Chats) == 0 {
		fmt.Println("No conversations yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CONVERSATION\tLAST ACTIVITY")
	for _, chat := range resp.Chats {
		fmt.Fprintf(w, "%s\t%s\n", chat.ConversationKey, chat.LastActivity.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func cmdThread(c *client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: thread <number> [limit]")
	}

	query := url.Values{"wa": {args[0]}}
	if len(args) > 1 {
		query.Set("limit", args[1])
	}

	var resp struct {
		ConversationKey string `json:"conversation_key"`
		Messages        []struct {
			Direction string    `json:"direction"`
			Timestamp time.Time `json:"timestamp"`
			Kind      string    `json:"kind"`
			Text      string    `json:"text"`
			Options   []string  `json:"options"`
			Caption   string    `json:"caption"`
		} `json:"messages"`
	}
	if err := c.do(http.MethodGet, "/api/operator/history", query, nil, &resp); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	cyan.Printf("Thread %s\n\n", resp.ConversationKey)
	if len(resp.Messages) == 0 {
		fmt.Println("No messages.")
		return nil
	}

	for _, m := range resp.Messages {
		ts := m.Timestamp.Local().Format("01-02 15:04")
		prefix := "← "
		line := color.New(color.FgGreen)
		if m.Direction == "out" {
			prefix = "→ "
			line = color.New(color.FgWhite)
		}

		gray.Printf("%s ", ts)
		line.Print(prefix)
		fmt.Println(m.Text)
		if len(m.Options) > 0 {
			gray.Printf("           [%s]\n", strings.Join(m.Options, " | "))
		}
		if m.Caption != "" && m.Caption != m.Text {
			gray.Printf("           caption: %s\n", m.Caption)
		}
	}
	return nil
}

func cmdSend(c *client, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: send <number> <text...>")
	}

	req := map[string]string{
		"op":              "send",
		"conversationKey": args[0],
		"text":            strings.Join(args[1:], " "),
	}
	var resp struct {
		ConversationKey string `json:"conversationKey"`
		Delivered       bool   `json:"delivered"`
	}
	if err := c.do(http.MethodPost, "/api/operator/send", nil, req, &resp); err != nil {
		return err
	}

	if !resp.Delivered {
		color.Yellow("Recorded but not delivered to %s", resp.ConversationKey)
		return nil
	}
	color.Green("Sent to %s", resp.ConversationKey)
	return nil
}

func cmdSendMedia(c *client, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: send-media <number> <image|document> <link> [caption]")
	}

	req := map[string]string{
		"op":              "send-media",
		"conversationKey": args[0],
		"mediaType":       args[1],
		"link":            args[2],
	}
	if len(args) > 3 {
		req["caption"] = strings.Join(args[3:], " ")
	}

	var resp struct {
		ConversationKey string `json:"conversationKey"`
		Delivered       bool   `json:"delivered"`
	}
	if err := c.do(http.MethodPost, "/api/operator/send", nil, req, &resp); err != nil {
		return err
	}

	if !resp.Delivered {
		color.Yellow("Delivery failed, marker recorded for %s", resp.ConversationKey)
		return nil
	}
	color.Green("Sent to %s", resp.ConversationKey)
	return nil
}

func cmdToken(c *client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: token <operator> [ttl]")
	}

	req := map[string]string{"operator": args[0]}
	if len(args) > 1 {
		req["ttl"] = args[1]
	}

	var resp struct {
		Token     string `json:"token"`
		ExpiresIn int64  `json:"expires_in"`
	}
	if err := c.do(http.MethodPost, "/api/operator/token", nil, req, &resp); err != nil {
		return err
	}

	fmt.Println(resp.Token)
	color.New(color.FgHiBlack).Fprintf(os.Stderr, "expires in %s\n", time.Duration(resp.ExpiresIn)*time.Second)
	return nil
}
