package server

import (
	"github.com/bwmarrin/discordgo"

	"github.com/merchantbot/merchantbot/internal/biz/domain"
)

var (
	zero         = 0.0
	dmPermission = true
)

// Commands returns the slash command definitions
func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:         "search",
			Description:  "Search Mercari for items listed in the last 10 days",
			DMPermission: &dmPermission,
			Options:      searchOptions(),
		},
		{
			Name:         "create-query",
			Description:  "Save a search query, optionally tracked for new items",
			DMPermission: &dmPermission,
			Options: append(append([]*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "name",
					Description: "Name of the query",
					Required:    true,
					MaxLength:   100,
				},
			}, searchOptions()...), &discordgo.ApplicationCommandOption{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        "track",
				Description: "Send a DM when new items match this query",
			}),
		},
		{
			Name:         "list-queries",
			Description:  "List your saved queries",
			DMPermission: &dmPermission,
		},
		{
			Name:         "run-query",
			Description:  "Run one of your saved queries now",
			DMPermission: &dmPermission,
			Options:      []*discordgo.ApplicationCommandOption{queryNameOption()},
		},
		{
			Name:         "track-query",
			Description:  "Enable or disable tracking of a saved query",
			DMPermission: &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				queryNameOption(),
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "enabled",
					Description: "Whether new items should be sent to you",
					Required:    true,
				},
			},
		},
		{
			Name:         "delete-query",
			Description:  "Delete a saved query",
			DMPermission: &dmPermission,
			Options:      []*discordgo.ApplicationCommandOption{queryNameOption()},
		},
		{
			Name:         "check-tracked",
			Description:  "Manually check your tracked queries for new items",
			DMPermission: &dmPermission,
		},
		{
			Name:         "item",
			Description:  "Get details for a specific Mercari item by ID",
			DMPermission: &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "item_id",
					Description: "The id of the item ex. m13270631255",
					Required:    true,
					MinLength:   intPtr(12),
					MaxLength:   30,
				},
			},
		},
		{
			Name:         "cron-status",
			Description:  "Check the status of the tracking service",
			DMPermission: &dmPermission,
		},
		{
			Name:         "ping",
			Description:  "Replies with Pong and bot information!",
			DMPermission: &dmPermission,
		},
	}
}

func searchOptions() []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "keyword",
			Description: "Search keyword",
			Required:    true,
		},
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "exclude_keyword",
			Description: "Exclude items containing this keyword",
		},
		{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        "price_min",
			Description: "Minimum price in yen",
			MinValue:    &zero,
		},
		{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        "price_max",
			Description: "Maximum price in yen",
			MinValue:    &zero,
		},
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "sort",
			Description: "Sort by",
			Choices: []*discordgo.ApplicationCommandOptionChoice{
				{Name: "Created time", Value: string(domain.SortCreatedTime)},
				{Name: "Price", Value: string(domain.SortPrice)},
				{Name: "Likes", Value: string(domain.SortNumLikes)},
				{Name: "Score", Value: string(domain.SortScore)},
			},
		},
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "order",
			Description: "Sort order",
			Choices: []*discordgo.ApplicationCommandOptionChoice{
				{Name: "Descending", Value: string(domain.OrderDesc)},
				{Name: "Ascending", Value: string(domain.OrderAsc)},
			},
		},
		{
			Type:        discordgo.ApplicationCommandOptionBoolean,
			Name:        "item_condition_used",
			Description: "Only used items",
		},
	}
}

func queryNameOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionString,
		Name:         "name",
		Description:  "Name of the query",
		Required:     true,
		Autocomplete: true,
	}
}

func intPtr(v int) *int { return &v }
