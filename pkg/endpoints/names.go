package endpoints

// Names of the operations shipped in the default catalog.
const (
	OpLeaguePlayerAdvancedStats = "league_player_advanced_stats"
	OpLeaguePlayerBaseStats     = "league_player_base_stats"
	OpLeagueTeamAdvancedStats   = "league_team_advanced_stats"
	OpPlayerGameLogs            = "player_game_logs"
	OpPlayerShotChart           = "player_shot_chart"
	OpPlayByPlay                = "play_by_play"
	OpLeagueGameLog             = "league_game_log"
	OpCommonAllPlayers          = "common_all_players"
	OpBoxScoreAdvanced          = "box_score_advanced"
)
