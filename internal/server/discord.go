package server

import (
	"context"
	"log"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/merchantbot/merchantbot/internal/biz/domain"
	"github.com/merchantbot/merchantbot/internal/data"
	"github.com/merchantbot/merchantbot/internal/infra/discord"
	"github.com/merchantbot/merchantbot/internal/service"
)

// commandTimeout bounds one command; interaction tokens stay valid for 15 minutes
const commandTimeout = 10 * time.Minute

// maxChoices is the Discord limit of autocomplete choices
const maxChoices = 25

// options indexes the options of an interaction by name
type options map[string]*discordgo.ApplicationCommandInteractionDataOption

func (o options) String(name string) string {
	if opt, ok := o[name]; ok {
		return opt.StringValue()
	}
	return ""
}

func (o options) Bool(name string) bool {
	if opt, ok := o[name]; ok {
		return opt.BoolValue()
	}
	return false
}

// Int returns nil when the option was not given
func (o options) Int(name string) *int {
	if opt, ok := o[name]; ok {
		v := int(opt.IntValue())
		return &v
	}
	return nil
}

// invocation is one slash command call
type invocation struct {
	userID  string
	opts    options
	latency time.Duration // Time taken by the deferred response
	session *discordgo.Session
}

type commandHandler func(ctx context.Context, inv *invocation) (*domain.Notice, error)

// DiscordServer serves slash commands and drives the tracker
type DiscordServer struct {
	client   *discord.Client
	commands *service.CommandService
	tracker  *service.TrackerService
	appID    string
	guildID  string

	handlers  map[string]commandHandler
	ephemeral map[string]bool
}

// NewDiscordServer creates a new Discord server
func NewDiscordServer(
	client *discord.Client,
	commands *service.CommandService,
	tracker *service.TrackerService,
	appID, guildID string,
) *DiscordServer {
	s := &DiscordServer{
		client:    client,
		commands:  commands,
		tracker:   tracker,
		appID:     appID,
		guildID:   guildID,
		ephemeral: map[string]bool{"cron-status": true},
	}
	s.handlers = map[string]commandHandler{
		"search":        s.search,
		"create-query":  s.createQuery,
		"list-queries":  s.listQueries,
		"run-query":     s.runQuery,
		"track-query":   s.trackQuery,
		"delete-query":  s.deleteQuery,
		"check-tracked": s.checkTracked,
		"item":          s.item,
		"cron-status":   s.cronStatus,
		"ping":          s.ping,
	}
	return s
}

// Start connects to the gateway, registers the commands and starts the tracker
func (s *DiscordServer) Start() error {
	s.client.OnInteraction(s.handleInteraction)
	if err := s.client.Start(); err != nil {
		return err
	}
	if err := s.client.RegisterCommands(s.appID, s.guildID, Commands()); err != nil {
		s.client.Stop()
		return err
	}
	s.tracker.Start()
	return nil
}

// Stop stops the tracker, waiting for a running cycle, then disconnects
func (s *DiscordServer) Stop() {
	s.tracker.Stop()
	if err := s.client.Stop(); err != nil {
		log.Printf("[Server] Failed to close gateway: %v", err)
	}
}

func (s *DiscordServer) handleInteraction(session *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		s.handleCommand(session, i)
	case discordgo.InteractionApplicationCommandAutocomplete:
		s.handleAutocomplete(session, i)
	}
}

func (s *DiscordServer) handleCommand(session *discordgo.Session, i *discordgo.InteractionCreate) {
	cmd := i.ApplicationCommandData()
	userID := interactionUserID(i)
	log.Printf("[Server] /%s from %s", cmd.Name, userID)

	handler, ok := s.handlers[cmd.Name]
	if !ok {
		log.Printf("[Server] Unknown command %s", cmd.Name)
		return
	}

	deferred := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredChannelMessageWithSource}
	if s.ephemeral[cmd.Name] {
		deferred.Data = &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral}
	}
	start := time.Now()
	if err := session.InteractionRespond(i.Interaction, deferred); err != nil {
		log.Printf("[Server] Failed to defer /%s: %v", cmd.Name, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	inv := &invocation{
		userID:  userID,
		opts:    indexOptions(cmd.Options),
		latency: time.Since(start),
		session: session,
	}
	notice, err := handler(ctx, inv)
	if err != nil {
		notice = &domain.Notice{Content: s.commands.UserMessage(err)}
	}

	content := notice.Content
	embeds := data.DiscordEmbeds(notice)
	if _, err := session.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
		Embeds:  &embeds,
	}, discordgo.WithContext(ctx)); err != nil {
		log.Printf("[Server] Failed to reply to /%s: %v", cmd.Name, err)
	}
}

func (s *DiscordServer) handleAutocomplete(session *discordgo.Session, i *discordgo.InteractionCreate) {
	cmd := i.ApplicationCommandData()
	var prefix string
	for _, opt := range cmd.Options {
		if opt.Focused {
			prefix = opt.StringValue()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	names, err := s.commands.QueryNames(ctx, interactionUserID(i), prefix)
	if err != nil {
		log.Printf("[Server] Autocomplete failed: %v", err)
	}
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(names))
	for _, name := range names {
		if len(choices) == maxChoices {
			break
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: name, Value: name})
	}

	err = session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	})
	if err != nil {
		log.Printf("[Server] Failed to send autocomplete choices: %v", err)
	}
}

func (s *DiscordServer) search(ctx context.Context, inv *invocation) (*domain.Notice, error) {
	return s.commands.Search(ctx, searchRequest(inv.opts))
}

func (s *DiscordServer) createQuery(ctx context.Context, inv *invocation) (*domain.Notice, error) {
	return s.commands.CreateQuery(ctx, inv.userID, inv.opts.String("name"), searchRequest(inv.opts), inv.opts.Bool("track"))
}

func (s *DiscordServer) listQueries(ctx context.Context, inv *invocation) (*domain.Notice, error) {
	return s.commands.ListQueries(ctx, inv.userID)
}

func (s *DiscordServer) runQuery(ctx context.Context, inv *invocation) (*domain.Notice, error) {
	return s.commands.RunQuery(ctx, inv.userID, inv.opts.String("name"))
}

func (s *DiscordServer) trackQuery(ctx context.Context, inv *invocation) (*domain.Notice, error) {
	return s.commands.TrackQuery(ctx, inv.userID, inv.opts.String("name"), inv.opts.Bool("enabled"))
}

func (s *DiscordServer) deleteQuery(ctx context.Context, inv *invocation) (*domain.Notice, error) {
	return s.commands.DeleteQuery(ctx, inv.userID, inv.opts.String("name"))
}

func (s *DiscordServer) checkTracked(ctx context.Context, inv *invocation) (*domain.Notice, error) {
	return s.commands.CheckTracked(ctx, inv.userID)
}

func (s *DiscordServer) item(ctx context.Context, inv *invocation) (*domain.Notice, error) {
	return s.commands.Item(ctx, inv.opts.String("item_id"))
}

func (s *DiscordServer) cronStatus(ctx context.Context, inv *invocation) (*domain.Notice, error) {
	return s.commands.CronStatus(ctx, inv.userID)
}

func (s *DiscordServer) ping(ctx context.Context, inv *invocation) (*domain.Notice, error) {
	return s.commands.Ping(inv.latency, inv.session.HeartbeatLatency()), nil
}

func searchRequest(opts options) service.SearchRequest {
	return service.SearchRequest{
		Keyword:        opts.String("keyword"),
		ExcludeKeyword: opts.String("exclude_keyword"),
		PriceMin:       opts.Int("price_min"),
		PriceMax:       opts.Int("price_max"),
		Sort:           opts.String("sort"),
		Order:          opts.String("order"),
		UsedOnly:       opts.Bool("item_condition_used"),
	}
}

func indexOptions(list []*discordgo.ApplicationCommandInteractionDataOption) options {
	opts := make(options, len(list))
	for _, opt := range list {
		opts[opt.Name] = opt
	}
	return opts
}

// interactionUserID returns the invoking user in guilds and in DMs
func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
