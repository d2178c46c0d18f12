package server

import (
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestCommands_Definitions(t *testing.T) {
	seen := make(map[string]bool)
	s := NewDiscordServer(nil, nil, nil, "", "")

	for _, cmd := range Commands() {
		if seen[cmd.Name] {
			t.Errorf("Duplicate command %s", cmd.Name)
		}
		seen[cmd.Name] = true

		if _, ok := s.handlers[cmd.Name]; !ok {
			t.Errorf("Command %s has no handler", cmd.Name)
		}

		// Discord rejects required options after optional ones
		optional := false
		for _, opt := range cmd.Options {
			if !opt.Required {
				optional = true
			} else if optional {
				t.Errorf("Command %s: required option %s follows an optional one", cmd.Name, opt.Name)
			}
		}
	}

	if len(seen) != len(s.handlers) {
		t.Errorf("Expected %d commands, got %d", len(s.handlers), len(seen))
	}
}

func TestSearchRequest_FromOptions(t *testing.T) {
	opts := indexOptions([]*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "keyword", Type: discordgo.ApplicationCommandOptionString, Value: "camera"},
		{Name: "price_max", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(20000)},
		{Name: "item_condition_used", Type: discordgo.ApplicationCommandOptionBoolean, Value: true},
	})

	req := searchRequest(opts)

	if req.Keyword != "camera" {
		t.Errorf("Expected keyword camera, got %q", req.Keyword)
	}
	if req.PriceMin != nil {
		t.Errorf("Expected unset min price, got %d", *req.PriceMin)
	}
	if req.PriceMax == nil || *req.PriceMax != 20000 {
		t.Errorf("Expected max price 20000, got %v", req.PriceMax)
	}
	if !req.UsedOnly {
		t.Error("Expected used-only filter")
	}
}

func TestInteractionUserID(t *testing.T) {
	guild := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Member: &discordgo.Member{User: &discordgo.User{ID: "g1"}},
	}}
	if got := interactionUserID(guild); got != "g1" {
		t.Errorf("Expected member user, got %q", got)
	}

	dm := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		User: &discordgo.User{ID: "d1"},
	}}
	if got := interactionUserID(dm); got != "d1" {
		t.Errorf("Expected DM user, got %q", got)
	}
}
