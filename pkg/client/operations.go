package client

import (
	"context"

	"github.com/shaneisley/courtside/pkg/endpoints"
	"github.com/shaneisley/courtside/pkg/payload"
)

func (c *Client) fetchPayload(ctx context.Context, operation string, args endpoints.Args) (*payload.Payload, error) {
	result, err := c.Fetch(ctx, operation, args)
	if err != nil {
		return nil, err
	}
	return result.Payload, nil
}

// LeaguePlayerAdvancedStats returns league-wide advanced player stats.
func (c *Client) LeaguePlayerAdvancedStats(ctx context.Context, season, seasonType string) (*payload.Payload, error) {
	return c.fetchPayload(ctx, endpoints.OpLeaguePlayerAdvancedStats, endpoints.Args{
		endpoints.ArgSeason:     season,
		endpoints.ArgSeasonType: seasonType,
	})
}

// LeaguePlayerBaseStats returns league-wide traditional player stats.
func (c *Client) LeaguePlayerBaseStats(ctx context.Context, season, seasonType string) (*payload.Payload, error) {
	return c.fetchPayload(ctx, endpoints.OpLeaguePlayerBaseStats, endpoints.Args{
		endpoints.ArgSeason:     season,
		endpoints.ArgSeasonType: seasonType,
	})
}

// LeagueTeamAdvancedStats returns league-wide advanced team stats.
func (c *Client) LeagueTeamAdvancedStats(ctx context.Context, season, seasonType string) (*payload.Payload, error) {
	return c.fetchPayload(ctx, endpoints.OpLeagueTeamAdvancedStats, endpoints.Args{
		endpoints.ArgSeason:     season,
		endpoints.ArgSeasonType: seasonType,
	})
}

// PlayerGameLogs returns one player's game-by-game box scores.
func (c *Client) PlayerGameLogs(ctx context.Context, playerID, season, seasonType string) (*payload.Payload, error) {
	return c.fetchPayload(ctx, endpoints.OpPlayerGameLogs, endpoints.Args{
		endpoints.ArgPlayerID:   playerID,
		endpoints.ArgSeason:     season,
		endpoints.ArgSeasonType: seasonType,
	})
}

// PlayerShotChart returns every field goal attempt for a player.
func (c *Client) PlayerShotChart(ctx context.Context, playerID, season, seasonType string) (*payload.Payload, error) {
	return c.fetchPayload(ctx, endpoints.OpPlayerShotChart, endpoints.Args{
		endpoints.ArgPlayerID:   playerID,
		endpoints.ArgSeason:     season,
		endpoints.ArgSeasonType: seasonType,
	})
}

// PlayByPlay returns the event log for one game.
func (c *Client) PlayByPlay(ctx context.Context, gameID string) (*payload.Payload, error) {
	return c.fetchPayload(ctx, endpoints.OpPlayByPlay, endpoints.Args{
		endpoints.ArgGameID: gameID,
	})
}

// LeagueGameLog returns every team game in a season.
func (c *Client) LeagueGameLog(ctx context.Context, season, seasonType string) (*payload.Payload, error) {
	return c.fetchPayload(ctx, endpoints.OpLeagueGameLog, endpoints.Args{
		endpoints.ArgSeason:     season,
		endpoints.ArgSeasonType: seasonType,
	})
}

// CommonAllPlayers returns the player index for a season.
func (c *Client) CommonAllPlayers(ctx context.Context, season string) (*payload.Payload, error) {
	return c.fetchPayload(ctx, endpoints.OpCommonAllPlayers, endpoints.Args{
		endpoints.ArgSeason: season,
	})
}

// BoxScoreAdvanced returns advanced box score lines for one game.
func (c *Client) BoxScoreAdvanced(ctx context.Context, gameID string) (*payload.Payload, error) {
	return c.fetchPayload(ctx, endpoints.OpBoxScoreAdvanced, endpoints.Args{
		endpoints.ArgGameID: gameID,
	})
}
