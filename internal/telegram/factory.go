package telegram

import (
	"fmt"

	"github.com/blockedby/telescout/internal/config"
	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/sessionMaker"
	"github.com/glebarez/sqlite"
)

// newProtoClient creates a telegram client with a sqlite-backed session.
// On first run gotgproto drives the phone-code (and 2FA password) prompts
// interactively; afterwards the session file is reused.
func newProtoClient(cfg *config.Config) (*gotgproto.Client, error) {
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
		return nil, fmt.Errorf("create telegram client: %w", err)
	}

	return client, nil
}
