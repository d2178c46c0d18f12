package data

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/merchantbot/merchantbot/internal/biz/domain"
	"github.com/merchantbot/merchantbot/internal/biz/repo"
)

// discordAPI is the part of the Discord client the messenger needs
type discordAPI interface {
	User(ctx context.Context, userID string) (*discordgo.User, error)
	DMChannel(ctx context.Context, userID string) (string, error)
	ForgetDMChannel(userID string)
	SendMessage(ctx context.Context, channelID string, msg *discordgo.MessageSend) error
}

// discordRepo implements the Messenger on Discord
type discordRepo struct {
	client discordAPI
}

// NewDiscordRepo creates a new Discord messenger
func NewDiscordRepo(client discordAPI) repo.Messenger {
	return &discordRepo{client: client}
}

// ResolveUser resolves a user by id
func (r *discordRepo) ResolveUser(ctx context.Context, userID string) (*domain.User, error) {
	u, err := r.client.User(ctx, userID)
	if err != nil {
		if isUnknownUser(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrUserUnreachable, userID)
		}
		return nil, fmt.Errorf("failed to resolve user %s: %w", userID, err)
	}
	return &domain.User{ID: u.ID, Username: u.Username}, nil
}

// SendDirect sends the notice through the user's cached DM channel
func (r *discordRepo) SendDirect(ctx context.Context, userID string, notice *domain.Notice) error {
	channelID, err := r.client.DMChannel(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get DM channel for %s: %w", userID, err)
	}
	if err := r.client.SendMessage(ctx, channelID, DiscordMessage(notice)); err != nil {
		return fmt.Errorf("failed to send DM to %s: %w", userID, err)
	}
	return nil
}

// OpenDirectChannel drops any cached DM channel and opens a fresh one
func (r *discordRepo) OpenDirectChannel(ctx context.Context, userID string) (string, error) {
	r.client.ForgetDMChannel(userID)
	channelID, err := r.client.DMChannel(ctx, userID)
	if err != nil {
		if isUnknownUser(err) {
			return "", fmt.Errorf("%w: %s", domain.ErrUserUnreachable, userID)
		}
		return "", fmt.Errorf("failed to open DM channel for %s: %w", userID, err)
	}
	return channelID, nil
}

// SendChannel sends the notice to a channel
func (r *discordRepo) SendChannel(ctx context.Context, channelID string, notice *domain.Notice) error {
	if err := r.client.SendMessage(ctx, channelID, DiscordMessage(notice)); err != nil {
		return fmt.Errorf("failed to send to channel %s: %w", channelID, err)
	}
	return nil
}

// DiscordMessage converts a notice into a Discord message
func DiscordMessage(n *domain.Notice) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Content: n.Content,
		Embeds:  DiscordEmbeds(n),
	}
}

// DiscordEmbeds converts the embeds of a notice
func DiscordEmbeds(n *domain.Notice) []*discordgo.MessageEmbed {
	embeds := make([]*discordgo.MessageEmbed, 0, len(n.Embeds))
	for _, e := range n.Embeds {
		me := &discordgo.MessageEmbed{
			Title:       e.Title,
			Description: e.Description,
			URL:         e.URL,
			Color:       e.Color,
		}
		if e.Thumbnail != "" {
			me.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.Thumbnail}
		}
		if e.Image != "" {
			me.Image = &discordgo.MessageEmbedImage{URL: e.Image}
		}
		if e.Footer != "" {
			me.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
		}
		if !e.Timestamp.IsZero() {
			me.Timestamp = e.Timestamp.Format(time.RFC3339)
		}
		for _, f := range e.Fields {
			me.Fields = append(me.Fields, &discordgo.MessageEmbedField{
				Name:   f.Name,
				Value:  f.Value,
				Inline: f.Inline,
			})
		}
		embeds = append(embeds, me)
	}
	return embeds
}

func isUnknownUser(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownUser {
		return true
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}
