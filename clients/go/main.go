// a2abus CLI - command line client for the a2abus messaging service
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/a2abus-protocol/a2abus/clients/go/a2abus"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("A2ABUS_URL")
	apiKey := os.Getenv("A2ABUS_KEY")
	agentID := os.Getenv("A2ABUS_AGENT")
	if agentID == "" {
		agentID = "cli"
	}

	client := a2abus.NewClient(baseURL, apiKey, agentID)
	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := client.Health()
		exitOnError(err)
		printJSON(resp)

	case "send":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: a2abus send <to> <content-json> [priority]")
			os.Exit(1)
		}
		priority := ""
		if len(os.Args) > 4 {
			priority = os.Args[4]
		}
		result, err := client.Send(a2abus.SendMessageInput{
			To:       os.Args[2],
			Content:  json.RawMessage(os.Args[3]),
			Priority: priority,
		})
		exitOnError(err)
		fmt.Printf("Sent: %s\n", result.ID)

	case "request":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: a2abus request <to> <action> [params-json] [timeout-sec]")
			os.Exit(1)
		}
		params := json.RawMessage("{}")
		if len(os.Args) > 4 {
			params = json.RawMessage(os.Args[4])
		}
		timeout := 30
		if len(os.Args) > 5 {
			if t, err := strconv.Atoi(os.Args[5]); err == nil {
				timeout = t
			}
		}
		response, err := client.Request(os.Args[2], os.Args[3], params, timeout)
		exitOnError(err)
		if response == nil {
			fmt.Println("No answer within timeout")
			os.Exit(2)
		}
		printJSON(response)

	case "inbox":
		unreadOnly := len(os.Args) > 2 && os.Args[2] == "unread"
		result, err := client.Inbox(50, unreadOnly)
		exitOnError(err)
		for _, msg := range result.Messages {
			fmt.Printf("[%s] %-10s %s -> %s: %s\n",
				msg.CreatedAt.Format("15:04:05"), msg.Priority, msg.From, msg.To, string(msg.Content))
		}

	case "respond":
		if len(os.Args) < 5 {
			fmt.Fprintln(os.Stderr, "Usage: a2abus respond <to> <request-id> <content-json>")
			os.Exit(1)
		}
		result, err := client.Respond(os.Args[2], os.Args[3], json.RawMessage(os.Args[4]))
		exitOnError(err)
		fmt.Printf("Sent: %s\n", result.ID)

	case "read":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: a2abus read <message-id>")
			os.Exit(1)
		}
		exitOnError(client.MarkRead(os.Args[2]))
		fmt.Println("Marked read")

	case "ack":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: a2abus ack <message-id>")
			os.Exit(1)
		}
		exitOnError(client.Acknowledge(os.Args[2]))
		fmt.Println("Acknowledged")

	case "listen":
		rooms := os.Args[2:]
		session, err := client.Connect(rooms)
		exitOnError(err)
		defer session.Close()
		fmt.Println("Listening... (Ctrl-C to stop)")
		for frame := range session.Frames {
			printJSON(frame)
		}

	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `a2abus - agent messaging CLI

Commands:
  health                                     Server health
  send <to> <content-json> [priority]        Send a message
  request <to> <action> [params] [timeout]   Blocking request
  respond <to> <request-id> <content-json>   Answer a pending request
  inbox [unread]                             Show inbox
  read <message-id>                          Mark a message read
  ack <message-id>                           Acknowledge a message
  listen [rooms...]                          Stream live events

Environment:
  A2ABUS_URL    Server URL (default http://localhost:8080)
  A2ABUS_KEY    API key
  A2ABUS_AGENT  Agent ID (default "cli")`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}
