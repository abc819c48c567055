package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tributeboard/internal/model"
)

// Announcer posts board movement to a Telegram channel. A nil
// Announcer is valid and does nothing, so notification stays optional.
type Announcer struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    zerolog.Logger
}

func NewAnnouncer(cfg model.TelegramConfig, log zerolog.Logger) (*Announcer, error) {
	if cfg.BotToken == "" || cfg.ChatID == 0 {
		return nil, nil
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &Announcer{
		bot:    bot,
		chatID: cfg.ChatID,
		log:    log.With().Str("component", "notify").Logger(),
	}, nil
}

// AnnounceOvertakes posts a message for every entry that climbed the
// board since the previous refresh
func (a *Announcer) AnnounceOvertakes(ranked []model.RankedEntry) {
	if a == nil {
		return
	}

	for _, entry := range ranked {
		if entry.Change.Direction != model.RankUp {
			continue
		}

		name := entry.Name
		if name == "" {
			name = shorten(entry.Address)
		}
		text := fmt.Sprintf("%s climbed %d place(s) to #%d with $%.2f in tributes",
			name, entry.Change.Places, entry.Rank, entry.TotalUSD)

		if _, err := a.bot.Send(tgbotapi.NewMessage(a.chatID, text)); err != nil {
			a.log.Warn().Err(err).Str("address", entry.Address).Msg("failed to announce overtake")
		}
	}
}

func shorten(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}
