package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/susu3304/chipledger/internal/settlement"
)

type Bot struct {
	session *discordgo.Session
	engine  *settlement.Engine
	log     *zap.Logger
	digests *digestWorker
}

func New(token string, engine *settlement.Engine, store DigestStore, interval time.Duration, log *zap.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	bot := &Bot{
		session: session,
		engine:  engine,
		log:     log,
		digests: newDigestWorker(session, store, engine, interval, log),
	}

	// Register event handlers
	session.AddHandler(bot.onReady)
	session.AddHandler(bot.onGuildCreate)
	session.AddHandler(bot.onInteractionCreate)

	session.Identify.Intents = discordgo.IntentsGuilds

	return bot, nil
}

func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	b.digests.start()
	b.log.Info("Discord bot is running")
	return nil
}

func (b *Bot) Stop() error {
	b.digests.stop()
	return b.session.Close()
}

func (b *Bot) onReady(s *discordgo.Session, event *discordgo.Ready) {
	b.log.Info("connected to discord", zap.String("user", event.User.Username))

	for _, guild := range event.Guilds {
		if err := b.registerGuildCommands(guild.ID); err != nil {
			b.log.Warn("failed to register commands", zap.String("guild_id", guild.ID), zap.Error(err))
		}
	}
}

func (b *Bot) onGuildCreate(s *discordgo.Session, event *discordgo.GuildCreate) {
	if err := b.registerGuildCommands(event.ID); err != nil {
		b.log.Warn("failed to register commands", zap.String("guild_id", event.ID), zap.Error(err))
	}
}

var commands = []*discordgo.ApplicationCommand{
	{
		Name:         "balances",
		Description:  "Show who owes whom in a poker group",
		DMPermission: boolPtr(false),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "group_id",
				Description: "Group ID",
				Required:    true,
			},
		},
	},
}

func (b *Bot) registerGuildCommands(guildID string) error {
	// Delete existing commands and register new ones
	_, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, guildID, commands)
	return err
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if data.Name != "balances" {
		return
	}

	var raw string
	for _, opt := range data.Options {
		if opt.Name == "group_id" {
			raw = opt.StringValue()
		}
	}

	content := b.balancesReply(context.Background(), raw)
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	}); err != nil {
		b.log.Warn("failed to respond to interaction", zap.Error(err))
	}
}

func (b *Bot) balancesReply(ctx context.Context, rawGroupID string) string {
	groupID, err := uuid.Parse(rawGroupID)
	if err != nil {
		return "That is not a valid group ID."
	}
	report, err := b.engine.ComputeBalances(ctx, groupID)
	if err != nil {
		b.log.Debug("balances command failed", zap.Stringer("group_id", groupID), zap.Error(err))
		return "Could not load balances for that group."
	}
	return FormatDigest(groupID.String(), report)
}

func boolPtr(b bool) *bool {
	return &b
}
