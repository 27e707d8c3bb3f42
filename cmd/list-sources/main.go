// Command list-sources prints the channels and groups visible to the
// configured account, with the identifiers that go into the channels list
// of config.yaml.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/sessionMaker"
	"github.com/glebarez/sqlite"
	"github.com/gotd/td/tg"

	"github.com/blockedby/telescout/internal/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	client, err := gotgproto.NewClient(
		cfg.Telegram.APIID,
		cfg.Telegram.APIHash,
		gotgproto.ClientTypePhone(cfg.Telegram.PhoneNumber),
		&gotgproto.ClientOpts{
			Session:          sessionMaker.SqlSession(sqlite.Open(cfg.SessionFile())),
			DisableCopyright: true,
		},
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error creating client:", err)
		os.Exit(1)
	}
	defer client.Stop()

	ctx := context.Background()
	dialogs, err := client.API().MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      200,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "error fetching dialogs:", err)
		os.Exit(1)
	}

	var chats []tg.ChatClass
	switch d := dialogs.(type) {
	case *tg.MessagesDialogs:
		chats = d.Chats
	case *tg.MessagesDialogsSlice:
		chats = d.Chats
	}

	fmt.Println("channels and groups available to this account:")
	fmt.Println()
	for _, chat := range chats {
		switch c := chat.(type) {
		case *tg.Channel:
			if c.Username != "" {
				fmt.Printf("  @%-32s %-12d %s\n", c.Username, c.ID, c.Title)
			} else {
				fmt.Printf("  %-33s %-12d %s\n", "(private)", c.ID, c.Title)
			}
		case *tg.Chat:
			fmt.Printf("  %-33s %-12d %s\n", "(group)", c.ID, c.Title)
		}
	}
	fmt.Println()
	fmt.Println("use the @username or the numeric id in the channels list of config.yaml")
}
