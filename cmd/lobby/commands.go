package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jason-s-yu/bulletmania/internal/lobby"
	"github.com/jason-s-yu/bulletmania/internal/models"
	"github.com/jason-s-yu/bulletmania/internal/session"
	"github.com/jason-s-yu/bulletmania/internal/transport"
)

func (a *app) list(ctx context.Context, args []string) error {
	fs := newFlagSet("list")
	watch := fs.Bool("watch", false, "keep refreshing the list")
	region := fs.String("region", "", "only show lobbies in this region")
	fs.Parse(args)

	r := models.Region(*region)
	if r != "" && !r.Valid() {
		return fmt.Errorf("unknown region %q", r)
	}
	if !*watch {
		lobbies, err := a.client.ListActivePublicLobbies(ctx, r)
		if err != nil {
			return err
		}
		printLobbies(lobbies)
		return nil
	}

	w := lobby.NewWatcher(a.client, a.logger)
	w.Region = r
	w.Interval = a.cfg.LobbyListInterval
	err := w.Run(ctx, func(lobbies []models.LobbyInfo) {
		fmt.Print("\033[H\033[2J")
		printLobbies(lobbies)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printLobbies(lobbies []models.LobbyInfo) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROOM\tREGION\tPLAYERS\tSCORE\tAGE")
	for _, l := range lobbies {
		players := 0
		if l.State != nil {
			players = len(l.State.PlayerNicknameMap)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%d\t%s\n",
			l.RoomID, l.Region, players, l.InitialConfig.Capacity,
			l.InitialConfig.WinningScore, time.Since(l.CreatedAt).Truncate(time.Second))
	}
	tw.Flush()
}

func (a *app) create(ctx context.Context, args []string) error {
	opts := lobby.DefaultOptions()
	fs := newFlagSet("create")
	visibility := fs.String("visibility", string(opts.Visibility), "public, private or local")
	region := fs.String("region", string(opts.Region), "deployment region")
	fs.IntVar(&opts.Capacity, "capacity", opts.Capacity, "max players (1-7)")
	fs.IntVar(&opts.WinningScore, "score", opts.WinningScore, "winning score (5-25)")
	fs.Parse(args)
	opts.Visibility = models.Visibility(*visibility)
	opts.Region = models.Region(*region)

	token, err := a.provider.Token(ctx, a.cfg.GoogleIDToken)
	if err != nil {
		return err
	}
	creator := lobby.NewCreator(a.client, a.poller, a.logger)
	creator.DevMode = a.cfg.DevMode

	fmt.Fprintln(os.Stderr, "Creating lobby...")
	roomID, err := creator.Create(ctx, token, opts)
	if err != nil {
		return err
	}
	fmt.Println(roomID)
	return nil
}

func (a *app) join(ctx context.Context, args []string) error {
	fs := newFlagSet("join")
	nickname := fs.String("nickname", "", "display name")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("join needs exactly one room id")
	}
	roomID := fs.Arg(0)

	token, err := a.provider.Token(ctx, a.cfg.GoogleIDToken)
	if err != nil {
		return err
	}
	dialer := &transport.Dialer{
		Token:        token.Value,
		Logger:       a.logger,
		Insecure:     a.cfg.InsecureTransport,
		PingInterval: a.cfg.PingInterval,
	}
	ctl := session.New(a.poller, a.client, session.DialFunc(func(ctx context.Context, roomID string, details models.ConnectionDetails) (session.Conn, error) {
		conn, err := dialer.Open(ctx, roomID, details)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}), a.logger)
	defer ctl.Close()

	updates, unsubscribe := ctl.Subscribe()
	defer unsubscribe()

	fmt.Fprintf(os.Stderr, "Connecting to room %s...\n", roomID)
	ctl.Navigate(ctx, roomID)
	snap := ctl.Snapshot()
	if snap.State != session.StateConnected {
		fmt.Println(snap.Status())
		return nil
	}

	stdin := bufio.NewScanner(os.Stdin)
	name := strings.TrimSpace(*nickname)
	for name == "" && snap.NeedsNickname() {
		fmt.Fprint(os.Stderr, "Nickname: ")
		if !stdin.Scan() {
			return errors.New("no nickname given")
		}
		name = strings.TrimSpace(stdin.Text())
	}
	if err := ctl.AckNickname(name); err != nil {
		return err
	}
	handle, ok := ctl.Connection()
	if !ok {
		fmt.Println(ctl.Snapshot().Status())
		return nil
	}
	conn := handle.(*transport.Conn)
	fmt.Println(ctl.Snapshot().Status())

	if err := sendJSON(ctx, conn, map[string]string{"type": "nickname", "nickname": name}); err != nil {
		return err
	}
	go relayInput(ctx, stdin, conn)
	go func() {
		select {
		case <-ctx.Done():
			conn.Disconnect(session.NormalClosure)
		case <-conn.Done():
		}
	}()

	for data := range conn.Messages() {
		fmt.Println(string(data))
	}

	// The controller refetches the lobby once the connection closes.
	timeout := time.After(ctl.RefetchTimeout + time.Second)
	for {
		select {
		case snap := <-updates:
			if snap.State == session.StateDisconnected {
				fmt.Println(snap.Status())
				return nil
			}
		case <-timeout:
			fmt.Println(ctl.Snapshot().Status())
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// relayInput turns stdin lines into game messages: "/win" reports a win,
// "/quit" leaves, anything else is chat.
func relayInput(ctx context.Context, stdin *bufio.Scanner, conn *transport.Conn) {
	for stdin.Scan() {
		line := strings.TrimSpace(stdin.Text())
		var err error
		switch line {
		case "":
			continue
		case "/quit":
			conn.Disconnect(session.NormalClosure)
			return
		case "/win":
			err = sendJSON(ctx, conn, map[string]string{"type": "win"})
		default:
			err = sendJSON(ctx, conn, map[string]string{"type": "chat", "msg": line})
		}
		if err != nil {
			return
		}
	}
}

func sendJSON(ctx context.Context, conn *transport.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Send(ctx, data)
}
