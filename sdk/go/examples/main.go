package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"OnchainAgent/sdk/go/agentkit"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "event: agent\ndata: \"Checking balance\"\n\n")
		_, _ = io.WriteString(w, "event: tools\ndata: \"Balance of 0xabc: 1.2 ETH\"\n\n")
		_, _ = io.WriteString(w, "event: completed\ndata: \"Agent finished\"\n\n")
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := agentkit.NewClient(srv.URL, nil)
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = client.Chat(ctx, "what is my balance?", func(ev agentkit.Event) error {
		fmt.Printf("[%s] %s\n", ev.Name, ev.Data)
		return nil
	})
	if err != nil {
		panic(err)
	}
}
