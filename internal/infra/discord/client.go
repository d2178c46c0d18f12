package discord

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// InteractionHandler is the callback for slash command interactions
type InteractionHandler func(s *discordgo.Session, i *discordgo.InteractionCreate)

// Client is the Discord bot client
type Client struct {
	session *discordgo.Session

	// DM channel id per user, filled lazily
	dmMu       sync.RWMutex
	dmChannels map[string]string
}

// NewClient creates a new Discord client for a bot token
func NewClient(token string) (*Client, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsDirectMessages

	return &Client{
		session:    session,
		dmChannels: make(map[string]string),
	}, nil
}

// OnInteraction sets the interaction handler. Must be called before Start.
func (c *Client) OnInteraction(handler InteractionHandler) {
	c.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		handler(s, i)
	})
}

// Start opens the gateway connection
func (c *Client) Start() error {
	c.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		log.Printf("[Discord] Logged in as %s#%s", r.User.Username, r.User.Discriminator)
	})
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	return nil
}

// Stop closes the gateway connection
func (c *Client) Stop() error {
	return c.session.Close()
}

// RegisterCommands overwrites the application's slash commands.
// An empty guildID registers them globally.
func (c *Client) RegisterCommands(appID, guildID string, commands []*discordgo.ApplicationCommand) error {
	registered, err := c.session.ApplicationCommandBulkOverwrite(appID, guildID, commands)
	if err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}
	log.Printf("[Discord] Registered %d commands", len(registered))
	return nil
}

// User fetches a user by id
func (c *Client) User(ctx context.Context, userID string) (*discordgo.User, error) {
	return c.session.User(userID, discordgo.WithContext(ctx))
}

// DMChannel returns the user's DM channel id, creating it on first use
func (c *Client) DMChannel(ctx context.Context, userID string) (string, error) {
	c.dmMu.RLock()
	id, ok := c.dmChannels[userID]
	c.dmMu.RUnlock()
	if ok {
		return id, nil
	}

	ch, err := c.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}

	c.dmMu.Lock()
	c.dmChannels[userID] = ch.ID
	c.dmMu.Unlock()
	return ch.ID, nil
}

// ForgetDMChannel drops the cached DM channel of a user
func (c *Client) ForgetDMChannel(userID string) {
	c.dmMu.Lock()
	delete(c.dmChannels, userID)
	c.dmMu.Unlock()
}

// SendMessage sends a message to a channel
func (c *Client) SendMessage(ctx context.Context, channelID string, msg *discordgo.MessageSend) error {
	_, err := c.session.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx))
	return err
}
