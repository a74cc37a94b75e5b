// Peercall — CLI entry point.
//
// Connects to a rendezvous server, advertises a short identity, and lets
// two peers negotiate a direct audio/video session with a text side
// channel. All media flows peer-to-peer; the rendezvous server only
// brokers the handshake.
//
// It can be launched with flags (-server, -remote, -turn ...) or
// interactively; with no -remote, it waits for an incoming call while a
// remote identity can still be entered at the prompt.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/pterm/pterm"

	"github.com/shivaprasad369/pocky/internal/app"
	"github.com/shivaprasad369/pocky/internal/call"
	"github.com/shivaprasad369/pocky/internal/chat"
	"github.com/shivaprasad369/pocky/internal/media"
	"github.com/shivaprasad369/pocky/internal/recovery"
	signalpkg "github.com/shivaprasad369/pocky/internal/signal"
	"github.com/shivaprasad369/pocky/internal/util"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	server := flag.String("server", "ws://127.0.0.1:9000/ws", "rendezvous server URL")
	remote := flag.String("remote", "", "remote identity to call immediately")
	stun := flag.String("stun", "stun:stun.l.google.com:19302", "STUN server URL")
	turn := flag.String("turn", "", "TURN relay URL (recommended for restrictive networks)")
	turnUser := flag.String("turn-user", "", "TURN username")
	turnPass := flag.String("turn-pass", "", "TURN credential")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	pterm.Info.Printfln("Peercall — v%s", version)
	pterm.Println()

	ice := []signalpkg.ICEServer{{URLs: []string{*stun}}}
	if *turn != "" {
		ice = append(ice, signalpkg.ICEServer{
			URLs:       []string{*turn},
			Username:   *turnUser,
			Credential: *turnPass,
		})
	} else {
		pterm.Warning.Println("no -turn relay configured; calls may fail behind strict NATs")
	}

	manager := app.NewSessionManager(app.Config{
		Signal: signalpkg.Config{
			ServerURL:  *server,
			ICEServers: ice,
		},
		Sink: terminalSink{},
	}, app.Callbacks{
		OnStatus: func(st signalpkg.Status, identity string) {
			pterm.Info.Printfln("session %s (identity %s)", st, identity)
		},
		OnCallState: func(r string, st call.State) {
			pterm.Info.Printfln("call with %s: %s", r, st)
		},
		OnMessage: func(msg chat.Message) {
			if msg.Sender == chat.SenderRemote {
				pterm.Println(pterm.Cyan("peer> ") + msg.Text)
			}
		},
		OnRemoteStream: func(s *media.RemoteStream) {
			pterm.Success.Printfln("receiving %d remote track(s) from %s", len(s.Tracks()), s.Peer())
		},
		OnCallEnded: func(r string, final call.State) {
			pterm.Info.Printfln("call with %s finished (%s)", r, final)
		},
		OnAttachWarning: func(r string, attempts int) {
			pterm.Warning.Printfln("could not attach remote stream after %d attempts", attempts)
		},
		OnError: func(rep recovery.Report) {
			pterm.Error.Println(rep.String())
		},
	})
	defer manager.Close()

	identity, err := manager.Start(ctx)
	if err != nil {
		pterm.Error.Printfln("failed to reach rendezvous server: %v", err)
		os.Exit(1)
	}

	pterm.Println()
	pterm.DefaultBox.WithTitle("Your identity").Println(identity)
	pterm.Println()

	if *remote != "" {
		if err := manager.Dial(ctx, *remote); err != nil {
			pterm.Error.Printfln("dial failed: %v", err)
		}
	} else {
		pterm.Info.Println("waiting for calls — /call <identity> to dial, /help for commands")
	}

	go repl(ctx, manager)
	<-ctx.Done()
	pterm.Info.Println("goodbye")
}

// repl reads commands and chat lines from stdin until ctx ends.
func repl(ctx context.Context, manager *app.SessionManager) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			if err := manager.SendMessage(line); err != nil {
				pterm.Warning.Printfln("message not sent: %v", err)
			}
			continue
		}

		cmd, arg, _ := strings.Cut(line, " ")
		switch cmd {
		case "/call":
			if err := manager.Dial(ctx, strings.TrimSpace(arg)); err != nil {
				pterm.Error.Printfln("dial failed: %v", err)
			}
		case "/end":
			manager.End()
		case "/audio":
			enabled := strings.TrimSpace(arg) != "off"
			manager.SetAudioEnabled(enabled)
			pterm.Info.Printfln("audio %s", onOff(enabled))
		case "/video":
			enabled := strings.TrimSpace(arg) != "off"
			manager.SetVideoEnabled(enabled)
			pterm.Info.Printfln("video %s", onOff(enabled))
		case "/id":
			pterm.Info.Println(manager.Identity())
		case "/help":
			pterm.Info.Println("commands: /call <identity>, /end, /audio on|off, /video on|off, /id, /quit")
		case "/quit":
			manager.End()
			os.Exit(0)
		default:
			pterm.Warning.Printfln("unknown command %s — /help for commands", cmd)
		}
	}
}

func onOff(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}

// terminalSink is the CLI's rendering surface: no video output, it just
// acknowledges the stream so attachment succeeds.
type terminalSink struct{}

func (terminalSink) Attach(s *media.RemoteStream) error {
	fmt.Fprintf(os.Stderr, "remote stream from %s attached (%d tracks)\n", s.Peer(), len(s.Tracks()))
	return nil
}
