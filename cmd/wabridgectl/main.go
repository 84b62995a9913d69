package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

func main() {
	addrFlag := flag.String("addr", "127.0.0.1:8787", "daemon HTTP address")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	baseURL := "http://" + *addrFlag

	switch args[0] {
	case "status":
		cmdStatus(baseURL, *jsonFlag)
	case "auth":
		cmdAuth(baseURL)
	case "chats":
		cmdChats(baseURL, *jsonFlag)
	case "messages":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: wabridgectl messages <chat-id>")
			os.Exit(1)
		}
		cmdMessages(baseURL, args[1], *jsonFlag)
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: wabridgectl send <chat-id> <text> [file]")
			os.Exit(1)
		}
		filePath := ""
		if len(args) >= 4 {
			filePath = args[3]
		}
		cmdSend(baseURL, args[1], args[2], filePath)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: wabridgectl [--addr <host:port>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                        Show session status")
	fmt.Fprintln(os.Stderr, "  auth                          Start authentication and wait for a QR code")
	fmt.Fprintln(os.Stderr, "  chats                         List synced chats")
	fmt.Fprintln(os.Stderr, "  messages <chat-id>            List messages in a chat")
	fmt.Fprintln(os.Stderr, "  send <chat-id> <text> [file]  Send a message, optionally with an attachment")
}

type authStatus struct {
	State    string `json:"state"`
	QRCode   string `json:"qrCode,omitempty"`
	Attempts int    `json:"attempts"`
}

func cmdStatus(baseURL string, jsonOut bool) {
	var st authStatus
	getJSON(baseURL+"/auth", &st)
	if jsonOut {
		outputJSON(st)
		return
	}
	fmt.Printf("State:    %s\n", st.State)
	fmt.Printf("Attempts: %d\n", st.Attempts)
	if st.QRCode != "" {
		fmt.Println("QR code available; run 'wabridgectl auth' to print it")
	}
}

func cmdAuth(baseURL string) {
	resp, err := httpClient.Post(baseURL+"/auth", "application/json", nil)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		fatal(fmt.Errorf("daemon returned %d: %s", resp.StatusCode, bytes.TrimSpace(body)))
	}

	// Poll for the QR code or a settled state.
	for i := 0; i < 60; i++ {
		var st authStatus
		getJSON(baseURL+"/auth", &st)
		switch st.State {
		case "Authenticated":
			fmt.Println("Session authenticated.")
			return
		case "Error":
			fatal(fmt.Errorf("authentication failed after %d attempts", st.Attempts))
		}
		if st.QRCode != "" {
			fmt.Println("Scan this QR code with the phone (data URL, render with any viewer):")
			fmt.Println(st.QRCode)
			return
		}
		time.Sleep(time.Second)
	}
	fatal(fmt.Errorf("timed out waiting for QR code"))
}

func cmdChats(baseURL string, jsonOut bool) {
	var chats []map[string]any
	getJSON(baseURL+"/chats", &chats)
	if jsonOut {
		outputJSON(chats)
		return
	}
	for _, c := range chats {
		fmt.Printf("%-40v %v\n", c["id"], c["name"])
	}
	fmt.Printf("%d chats\n", len(chats))
}

func cmdMessages(baseURL, chatID string, jsonOut bool) {
	var msgs []map[string]any
	getJSON(baseURL+"/messages?chatId="+chatID, &msgs)
	if jsonOut {
		outputJSON(msgs)
		return
	}
	for _, m := range msgs {
		dir := "<-"
		if sent, _ := m["outbound"].(bool); sent {
			dir = "->"
		}
		fmt.Printf("%s %v\n", dir, m["content"])
	}
}

func cmdSend(baseURL, chatID, text, filePath string) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("chatId", chatID)
	_ = mw.WriteField("message", text)
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			fatal(err)
		}
		fw, err := mw.CreateFormFile("file", filepath.Base(filePath))
		if err != nil {
			fatal(err)
		}
		if _, err := fw.Write(data); err != nil {
			fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		fatal(err)
	}

	resp, err := httpClient.Post(baseURL+"/messages", mw.FormDataContentType(), &body)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fatal(fmt.Errorf("daemon returned %d: %s", resp.StatusCode, bytes.TrimSpace(raw)))
	}

	var result struct {
		Success   bool   `json:"success"`
		MessageID string `json:"messageId"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		fatal(err)
	}
	fmt.Printf("Sent. Message ID: %s\n", result.MessageID)
}

func getJSON(url string, out any) {
	resp, err := httpClient.Get(url)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		fatal(fmt.Errorf("daemon returned %d: %s", resp.StatusCode, bytes.TrimSpace(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		fatal(err)
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
