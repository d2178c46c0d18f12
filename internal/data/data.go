package data

import (
	"github.com/merchantbot/merchantbot/internal/biz/repo"
	"github.com/merchantbot/merchantbot/internal/infra/discord"
	"github.com/merchantbot/merchantbot/internal/infra/mercari"
)

// Repositories contains all repositories
type Repositories struct {
	Query       repo.QueryRepo
	Marketplace repo.MarketplaceRepo
	Messenger   repo.Messenger // nil when running without a Discord connection
}

// NewRepositories creates all repositories.
// discordClient may be nil for processes that never send DMs (the MCP server).
func NewRepositories(
	mercariClient *mercari.Client,
	discordClient *discord.Client,
	dbPath string,
) (*Repositories, error) {
	queryRepo, err := NewQueryRepo(dbPath)
	if err != nil {
		return nil, err
	}

	repos := &Repositories{
		Query:       queryRepo,
		Marketplace: NewMercariRepo(mercariClient),
	}
	if discordClient != nil {
		repos.Messenger = NewDiscordRepo(discordClient)
	}
	return repos, nil
}

// Close releases the query database
func (r *Repositories) Close() error {
	return r.Query.Close()
}
