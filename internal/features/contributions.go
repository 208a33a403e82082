package features

// contribution is the declared identifier lists one feature bit adds to
// the wanted set. The strings follow the upstream demo-property naming
// scheme and must not be reordered.
type contribution struct {
	playerProps []string
	otherProps  []string
	events      []string
}

var contributions = [numBits]contribution{
	BitAim: {
		playerProps: []string{
			"position",
			"velocity",
			"view_angles",
			"aim_punch",
			"health",
			"armor",
			"life_state",
			"scoped",
			"active_weapon",
			"clip",
			"ammo",
			"accuracy_penalty",
			"recoil_index",
			"last_shot_time",
			"reload_state",
			"next_attack_ratios",
			"weapon_mode",
			"burst_mode",
			"shots_fired",
			"hits_on_server",
		},
		events: []string{
			"weapon_fire",
			"player_hurt",
			"player_death",
			"weapon_reload",
			"weapon_zoom",
		},
	},
	BitMovement: {
		playerProps: []string{
			"walking",
			"airborne",
			"flags",
			"move_state",
			"move_type",
			"duck_amount",
			"duck_speed",
			"duck_desire",
			"duck_override",
			"jump_until",
			"jump_vel",
			"jump_pressed",
			"ladder_surface",
			"ladder_normal",
			"velocity_modifier",
		},
		events: []string{
			"player_jump",
			"player_footstep",
		},
	},
	BitInfo: {
		playerProps: []string{
			"spotted",
			"spotted_by_mask",
			"last_place_name",
			"flash_duration",
			"flash_max_alpha",
		},
	},
	BitUtility: {
		events: []string{
			"flashbang_detonate",
			"player_blind",
			"smokegrenade_detonate",
			"smokegrenade_expired",
			"inferno_startburn",
			"inferno_expire",
			"hegrenade_detonate",
		},
	},
	BitObjective: {
		events: []string{
			"bomb_beginplant",
			"bomb_planted",
			"bomb_exploded",
			"bomb_begindefuse",
			"bomb_defused",
			"bomb_dropped",
			"bomb_pickup",
		},
	},
	BitEconomy: {
		playerProps: []string{
			"account",
			"start_account",
			"cash_spent_round",
			"total_cash_spent",
			"round_start_equipment_value",
			"freezetime_end_equipment_value",
			"current_equipment_value",
			"defuser",
			"helmet",
		},
	},
	BitRules: {
		otherProps: []string{
			"freeze_period",
			"warmup_period",
			"round_start_time",
			"round_time",
			"restart_round_time",
			"total_rounds_played",
			"consecutive_losses",
			"players_alive_ct",
			"players_alive_t",
			"round_win_reason",
		},
		events: []string{
			"round_prestart",
			"round_freeze_end",
			"round_start",
			"round_end",
			"round_officially_ended",
			"buytime_ended",
			"cs_pre_restart",
		},
	},
	// Reserved: validation contributes nothing yet
	BitValidation: {},
}
