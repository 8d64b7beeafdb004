// ABOUTME: Minimal REPL demo client exercising the replica/conn pair over a live relay.
// ABOUTME: Usage: coven-client -relay ws://localhost:7447/ws [-key ./client.key]
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/cryptoid"
	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/eventlog"
	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/relayclient"
)

func main() {
	relayURL := flag.String("relay", "ws://localhost:7447/ws", "relay websocket URL")
	keyPath := flag.String("key", "", "path to hex-encoded identity key (generated if absent)")
	flag.Parse()

	if err := run(*relayURL, *keyPath); err != nil {
		log.Fatal(err)
	}
}

func run(relayURL, keyPath string) error {
	priv, err := loadOrCreateIdentity(keyPath)
	if err != nil {
		return fmt.Errorf("loading identity: %w", err)
	}
	author := cryptoid.DerivePublic(priv)
	fmt.Fprintf(os.Stderr, "identity: %s\n", author)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	replica := relayclient.NewReplica(logger)
	replica.OnEvent(func(guildID string, ev *eventlog.Event) {
		printEvent(guildID, ev)
	})

	conn := relayclient.NewConn(relayURL, replica, logger)
	go conn.Run(ctx)
	defer conn.Close()

	fmt.Fprintln(os.Stderr, "connected. commands: /create <name>, /channel <guildId> <name>, /sub <guildId>, /msg <guildId> <channelId> <text>, /quit")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := dispatch(conn, priv, author, line); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
	return nil
}

func dispatch(conn *relayclient.Conn, priv *cryptoid.PrivateKey, author, line string) error {
	fields := strings.SplitN(line, " ", 2)
	cmd := fields[0]
	rest := ""
	if len(fields) > 1 {
		rest = fields[1]
	}

	switch cmd {
	case "/quit":
		os.Exit(0)
		return nil
	case "/create":
		return createGuild(conn, priv, author, rest)
	case "/channel":
		parts := strings.SplitN(rest, " ", 2)
		if len(parts) != 2 {
			return fmt.Errorf("usage: /channel <guildId> <name>")
		}
		return createChannel(conn, priv, author, parts[0], parts[1])
	case "/sub":
		if rest == "" {
			return fmt.Errorf("usage: /sub <guildId>")
		}
		conn.Subscribe(rest)
		return nil
	case "/msg":
		parts := strings.SplitN(rest, " ", 3)
		if len(parts) != 3 {
			return fmt.Errorf("usage: /msg <guildId> <channelId> <text>")
		}
		return sendMessage(conn, priv, author, parts[0], parts[1], parts[2])
	default:
		return fmt.Errorf("unrecognized command %q", cmd)
	}
}

// createGuild mirrors the two-pass genesis pattern every guild-creating
// caller must follow: a GUILD_CREATE event's guildId is its own eventual
// event id, which is only known once seq/createdAt/author are fixed.
func createGuild(conn *relayclient.Conn, priv *cryptoid.PrivateKey, author, name string) error {
	createdAt := time.Now().UnixMilli()
	body := eventlog.GuildCreateBody{Name: name, Access: eventlog.AccessPublic}
	sig, err := eventlog.Sign(priv, body, author, createdAt)
	if err != nil {
		return err
	}
	e := &eventlog.Event{Seq: 0, CreatedAt: createdAt, Author: author, Body: body, Signature: sig}
	guildID, err := eventlog.ComputeEventID(e)
	if err != nil {
		return err
	}

	body.GuildID = guildID
	sig, err = eventlog.Sign(priv, body, author, createdAt)
	if err != nil {
		return err
	}

	if err := conn.Publish(body, author, sig, createdAt); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "requested guild %q, id will be %s once accepted\n", name, guildID)
	conn.Subscribe(guildID)
	return nil
}

func createChannel(conn *relayclient.Conn, priv *cryptoid.PrivateKey, author, guildID, name string) error {
	createdAt := time.Now().UnixMilli()
	body := eventlog.ChannelCreateBody{
		GuildID:   guildID,
		ChannelID: uuid.New().String(),
		Name:      name,
		Kind:      eventlog.ChannelText,
	}
	sig, err := eventlog.Sign(priv, body, author, createdAt)
	if err != nil {
		return err
	}
	return conn.Publish(body, author, sig, createdAt)
}

func sendMessage(conn *relayclient.Conn, priv *cryptoid.PrivateKey, author, guildID, channelID, content string) error {
	createdAt := time.Now().UnixMilli()
	body := eventlog.MessageBody{
		GuildID:   guildID,
		ChannelID: channelID,
		MessageID: uuid.New().String(),
		Content:   content,
	}
	sig, err := eventlog.Sign(priv, body, author, createdAt)
	if err != nil {
		return err
	}
	return conn.Publish(body, author, sig, createdAt)
}

func printEvent(guildID string, ev *eventlog.Event) {
	switch body := ev.Body.(type) {
	case eventlog.GuildCreateBody:
		fmt.Printf("[%s] guild created: %s\n", guildID, body.Name)
	case eventlog.ChannelCreateBody:
		fmt.Printf("[%s] channel created: %s (%s)\n", guildID, body.Name, body.ChannelID)
	case eventlog.MessageBody:
		fmt.Printf("[%s/%s] %s: %s\n", guildID, body.ChannelID, ev.Author[:12], body.Content)
	case eventlog.EditMessageBody:
		fmt.Printf("[%s/%s] %s edited %s\n", guildID, body.ChannelID, ev.Author[:12], body.MessageID)
	case eventlog.DeleteMessageBody:
		fmt.Printf("[%s/%s] %s deleted %s\n", guildID, body.ChannelID, ev.Author[:12], body.MessageID)
	default:
		fmt.Printf("[%s] %s event from %s\n", guildID, ev.Body.Type(), ev.Author[:12])
	}
}

func loadOrCreateIdentity(path string) (*cryptoid.PrivateKey, error) {
	if path == "" {
		return cryptoid.GenerateKey()
	}
	data, err := os.ReadFile(path)
	if err == nil {
		return cryptoid.ParsePrivateKeyHex(strings.TrimSpace(string(data)))
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	key, err := cryptoid.GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(key.Hex()), 0600); err != nil {
		return nil, err
	}
	return key, nil
}
