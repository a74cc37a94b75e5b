// Rendezvous — the signaling server peers use to find each other.
//
// Clients connect over WebSocket, announce a short identity, and exchange
// SDP/ICE envelopes addressed by identity. The server never inspects
// payloads; all media and chat traffic flows peer-to-peer after setup.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/pterm/pterm"

	signalpkg "github.com/shivaprasad369/pocky/internal/signal"
	"github.com/shivaprasad369/pocky/internal/util"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	addr := flag.String("addr", ":9000", "listen address")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	srv := signalpkg.NewServer()
	port, err := srv.Start(*addr)
	if err != nil {
		pterm.Error.Printfln("failed to start: %v", err)
		os.Exit(1)
	}
	defer srv.Close()

	pterm.Success.Printfln("rendezvous server listening on port %d", port)
	pterm.Info.Println("peers connect with: peercall -server ws://<host>:" + pterm.Sprintf("%d", port) + "/ws")

	<-ctx.Done()
	pterm.Info.Println("shutting down")
}
