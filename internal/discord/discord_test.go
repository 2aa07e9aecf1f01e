package discord_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/kojo/internal/discord"
	"github.com/MrWong99/kojo/internal/discord/mock"
	"github.com/MrWong99/kojo/internal/dispatch"
	"github.com/MrWong99/kojo/internal/enforce"
	"github.com/MrWong99/kojo/internal/moderation"
)

const guildID = "g1"

// newState builds a cached guild in which the bot's highest role sits at
// position 10 with botPerms.
func newState(t *testing.T, botPerms int64) *discordgo.State {
	t.Helper()
	st := discordgo.NewState()
	st.User = &discordgo.User{ID: "bot", Bot: true}

	guild := &discordgo.Guild{
		ID:      guildID,
		OwnerID: "owner",
		Roles: []*discordgo.Role{
			{ID: guildID, Position: 0},
			{ID: "member", Position: 1},
			{ID: "admins", Position: 5, Permissions: discordgo.PermissionAdministrator},
			{ID: "kojo", Position: 10, Permissions: botPerms},
			{ID: "mods", Position: 20},
		},
		Channels: []*discordgo.Channel{
			{ID: "vc1", GuildID: guildID, Name: "Lobby", Type: discordgo.ChannelTypeGuildVoice},
			{ID: "stage", GuildID: guildID, Name: "Stage", Type: discordgo.ChannelTypeGuildStageVoice},
			{ID: "txt", GuildID: guildID, Name: "lobby", Type: discordgo.ChannelTypeGuildText},
		},
		Members: []*discordgo.Member{
			{User: &discordgo.User{ID: "bot", Bot: true}, Roles: []string{"kojo"}},
			{User: &discordgo.User{ID: "u1", Username: "alice", Discriminator: "0"}, Roles: []string{"member"}},
			{User: &discordgo.User{ID: "mod"}, Roles: []string{"mods"}},
			{User: &discordgo.User{ID: "admin"}, Roles: []string{"admins"}},
			{User: &discordgo.User{ID: "owner"}},
			{User: &discordgo.User{ID: "otherbot", Bot: true}},
		},
		VoiceStates: []*discordgo.VoiceState{
			{UserID: "u1", ChannelID: "vc1"},
			{UserID: "otherbot", ChannelID: "vc1"},
			{UserID: "bot", ChannelID: "vc1"},
			{UserID: "ghost", ChannelID: "vc1"},
		},
	}
	if err := st.GuildAdd(guild); err != nil {
		t.Fatalf("GuildAdd: %v", err)
	}
	return st
}

const sanctionPerms = discordgo.PermissionBanMembers | discordgo.PermissionKickMembers | discordgo.PermissionModerateMembers

func TestGuilds_MemberCapabilities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		botPerms int64
		user     string
		ban      bool
		kick     bool
		timeout  bool
	}{
		{name: "lower role", botPerms: sanctionPerms, user: "u1", ban: true, kick: true, timeout: true},
		{name: "higher role", botPerms: sanctionPerms, user: "mod"},
		{name: "owner", botPerms: sanctionPerms, user: "owner"},
		{name: "self", botPerms: sanctionPerms, user: "bot"},
		{name: "administrator cannot be timed out", botPerms: sanctionPerms, user: "admin", ban: true, kick: true},
		{name: "no permissions", botPerms: 0, user: "u1"},
		{name: "kick only", botPerms: discordgo.PermissionKickMembers, user: "u1", kick: true},
		{name: "bot administrator", botPerms: discordgo.PermissionAdministrator, user: "u1", ban: true, kick: true, timeout: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := discord.NewGuilds(newState(t, tt.botPerms), &mock.API{})

			m, err := g.Member(context.Background(), guildID, tt.user)
			if err != nil {
				t.Fatalf("Member: %v", err)
			}
			if m.ID() != tt.user {
				t.Errorf("ID() = %q, want %q", m.ID(), tt.user)
			}
			if got := m.Can(enforce.CapBan); got != tt.ban {
				t.Errorf("Can(ban) = %v, want %v", got, tt.ban)
			}
			if got := m.Can(enforce.CapKick); got != tt.kick {
				t.Errorf("Can(kick) = %v, want %v", got, tt.kick)
			}
			if got := m.Can(enforce.CapTimeout); got != tt.timeout {
				t.Errorf("Can(timeout) = %v, want %v", got, tt.timeout)
			}
		})
	}
}

func TestGuilds_MemberRESTFallback(t *testing.T) {
	t.Parallel()

	st := newState(t, sanctionPerms)
	api := &mock.API{Members: map[string]*discordgo.Member{
		"late": {User: &discordgo.User{ID: "late"}, Roles: []string{"member"}},
	}}
	g := discord.NewGuilds(st, api)

	m, err := g.Member(context.Background(), guildID, "late")
	if err != nil {
		t.Fatalf("Member: %v", err)
	}
	if !m.Can(enforce.CapBan) {
		t.Error("expected ban capability for a fetched low-role member")
	}
	if _, err := st.Member(guildID, "late"); err != nil {
		t.Errorf("fetched member not cached: %v", err)
	}

	// Cached now; no second REST call.
	if _, err := g.Member(context.Background(), guildID, "late"); err != nil {
		t.Fatalf("Member (cached): %v", err)
	}
	if n := len(api.CallsTo("GuildMember")); n != 1 {
		t.Errorf("GuildMember calls = %d, want 1", n)
	}

	_, err = g.Member(context.Background(), guildID, "nobody")
	if !errors.Is(err, discordgo.ErrStateNotFound) {
		t.Errorf("unknown member err = %v, want ErrStateNotFound", err)
	}
}

func TestMember_Sanctions(t *testing.T) {
	t.Parallel()

	api := &mock.API{}
	g := discord.NewGuilds(newState(t, sanctionPerms), api)
	m, err := g.Member(context.Background(), guildID, "u1")
	if err != nil {
		t.Fatalf("Member: %v", err)
	}

	ctx := context.Background()
	if err := m.Ban(ctx, "Kojo: grooming"); err != nil {
		t.Fatalf("Ban: %v", err)
	}
	if err := m.Kick(ctx, "Kojo: scams_malware"); err != nil {
		t.Fatalf("Kick: %v", err)
	}
	before := time.Now()
	if err := m.Timeout(ctx, time.Hour, "Kojo: self_harm"); err != nil {
		t.Fatalf("Timeout: %v", err)
	}

	bans := api.CallsTo("GuildBanCreateWithReason")
	if len(bans) != 1 || bans[0].Reason != "Kojo: grooming" || bans[0].UserID != "u1" {
		t.Errorf("ban calls = %+v", bans)
	}
	kicks := api.CallsTo("GuildMemberDeleteWithReason")
	if len(kicks) != 1 || kicks[0].Reason != "Kojo: scams_malware" {
		t.Errorf("kick calls = %+v", kicks)
	}
	timeouts := api.CallsTo("GuildMemberTimeout")
	if len(timeouts) != 1 || timeouts[0].Until == nil {
		t.Fatalf("timeout calls = %+v", timeouts)
	}
	if d := timeouts[0].Until.Sub(before); d < time.Hour || d > time.Hour+time.Minute {
		t.Errorf("timeout until is %v after call, want about 1h", d)
	}

	api.Err = errors.New("missing permissions")
	if err := m.Ban(ctx, "Kojo: grooming"); err == nil || !strings.Contains(err.Error(), "missing permissions") {
		t.Errorf("Ban error = %v, want wrapped platform error", err)
	}
}

func TestGuilds_Directory(t *testing.T) {
	t.Parallel()

	g := discord.NewGuilds(newState(t, sanctionPerms), &mock.API{})

	if !g.VoiceChannelExists(guildID, "vc1") {
		t.Error("vc1 should exist")
	}
	if !g.VoiceChannelExists(guildID, "stage") {
		t.Error("stage channels count as voice")
	}
	if g.VoiceChannelExists(guildID, "txt") {
		t.Error("text channel reported as voice")
	}
	if g.VoiceChannelExists("other", "vc1") {
		t.Error("channel reported in the wrong guild")
	}

	if id, ok := g.FindVoiceChannel(guildID, "LOBBY"); !ok || id != "vc1" {
		t.Errorf("FindVoiceChannel(LOBBY) = %q, %v; want vc1, true", id, ok)
	}
	if _, ok := g.FindVoiceChannel(guildID, "general"); ok {
		t.Error("FindVoiceChannel matched a missing channel")
	}

	// u1 and the uncached ghost; both bots are excluded.
	if n := g.Humans(guildID, "vc1"); n != 2 {
		t.Errorf("Humans(vc1) = %d, want 2", n)
	}
	if n := g.Humans(guildID, "stage"); n != 0 {
		t.Errorf("Humans(stage) = %d, want 0", n)
	}

	if ch := g.VoiceChannelOf(guildID, "u1"); ch != "vc1" {
		t.Errorf("VoiceChannelOf(u1) = %q, want vc1", ch)
	}
	if ch := g.VoiceChannelOf(guildID, "mod"); ch != "" {
		t.Errorf("VoiceChannelOf(mod) = %q, want empty", ch)
	}

	human, err := g.IsHuman(context.Background(), guildID, "u1")
	if err != nil || !human {
		t.Errorf("IsHuman(u1) = %v, %v", human, err)
	}
	human, err = g.IsHuman(context.Background(), guildID, "otherbot")
	if err != nil || human {
		t.Errorf("IsHuman(otherbot) = %v, %v", human, err)
	}
}

func TestMessageFrom(t *testing.T) {
	t.Parallel()

	g := discord.NewGuilds(newState(t, sanctionPerms), &mock.API{})

	m := discord.MessageFrom(g, &discordgo.Message{
		ID:        "m1",
		GuildID:   guildID,
		ChannelID: "c1",
		Content:   "look",
		Author:    &discordgo.User{ID: "u1", Username: "alice", Discriminator: "0"},
		Member:    &discordgo.Member{Roles: []string{"member"}},
		Attachments: []*discordgo.MessageAttachment{
			{URL: "https://cdn.example/a.png", Filename: "a.png", ContentType: "image/png"},
		},
	})

	if m.AuthorTag != "alice" || m.AuthorID != "u1" || m.AuthorBot {
		t.Errorf("author = %q/%q/%v", m.AuthorTag, m.AuthorID, m.AuthorBot)
	}
	if m.Link != "https://discord.com/channels/g1/c1/m1" {
		t.Errorf("Link = %q", m.Link)
	}
	if len(m.Attachments) != 1 || m.Attachments[0].ContentType != "image/png" {
		t.Errorf("Attachments = %+v", m.Attachments)
	}
	if m.Member == nil || m.Member.ID() != "u1" || !m.Member.Can(enforce.CapBan) {
		t.Errorf("Member = %+v", m.Member)
	}

	dm := discord.MessageFrom(g, &discordgo.Message{
		ID:        "m2",
		ChannelID: "dm",
		Author:    &discordgo.User{ID: "u1"},
	})
	if dm.Member != nil {
		t.Error("DM message should carry no member")
	}
	if dm.Link != "https://discord.com/channels/@me/dm/m2" {
		t.Errorf("DM Link = %q", dm.Link)
	}
}

func TestAuditEmbed(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	e := dispatch.Event{
		ID: "ev-1",
		At: at,
		Subject: dispatch.Subject{
			GuildID:   guildID,
			ChannelID: "c1",
			UserID:    "u1",
			UserTag:   "alice",
			Content:   strings.Repeat("é", 450),
			Link:      "https://discord.com/channels/g1/c1/m1",
		},
		Verdict: moderation.Verdict{
			Category:   moderation.CategoryPersonalInfoSolicitation,
			Confidence: 0.9,
			Rationale:  "asks for address",
		},
		Decision: moderation.Decision{Severity: moderation.SeverityHigh, Action: moderation.ActionBan},
		Result:   enforce.Result{Applied: true, Note: "kick fallback"},
	}

	embed := discord.AuditEmbed(e)
	if embed.Title != "Kojo Moderation Event" {
		t.Errorf("Title = %q", embed.Title)
	}
	if embed.Color != 0xff6600 {
		t.Errorf("Color = %#x, want 0xff6600", embed.Color)
	}
	if embed.Timestamp != "2026-01-02T03:04:05Z" {
		t.Errorf("Timestamp = %q", embed.Timestamp)
	}

	want := []struct {
		name, value string
		inline      bool
	}{
		{"User", "alice (u1)", false},
		{"Channel", "<#c1>", true},
		{"Category", "personal_info_solicitation", true},
		{"Severity", "high", true},
		{"Action", "ban", true},
		{"Confidence", "0.9", true},
		{"Rationale", "asks for address", false},
		{"Enforcement Note", "kick fallback", false},
		{"Content (preview)", "```" + strings.Repeat("é", 400) + "```", false},
		{"Link", "https://discord.com/channels/g1/c1/m1", false},
	}
	if len(embed.Fields) != len(want) {
		t.Fatalf("got %d fields, want %d", len(embed.Fields), len(want))
	}
	for i, w := range want {
		f := embed.Fields[i]
		if f.Name != w.name || f.Value != w.value || f.Inline != w.inline {
			t.Errorf("field %d = {%q %q %v}, want {%q %q %v}", i, f.Name, f.Value, f.Inline, w.name, w.value, w.inline)
		}
	}
}

func TestAuditEmbed_Defaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		event   dispatch.Event
		user    string
		channel string
		color   int
		nFields int
	}{
		{
			name:    "empty subject",
			event:   dispatch.Event{},
			user:    "Unknown",
			channel: "Unknown",
			color:   0x00cc66,
			nFields: 7,
		},
		{
			name: "id without tag",
			event: dispatch.Event{
				Subject:  dispatch.Subject{UserID: "u9", ChannelID: "vc1"},
				Decision: moderation.Decision{Severity: moderation.SeverityCritical},
			},
			user:    "u9",
			channel: "<#vc1>",
			color:   0xff0033,
			nFields: 7,
		},
		{
			name: "medium with content",
			event: dispatch.Event{
				Subject:  dispatch.Subject{Content: "hi"},
				Decision: moderation.Decision{Severity: moderation.SeverityMedium},
			},
			user:    "Unknown",
			channel: "Unknown",
			color:   0xffcc00,
			nFields: 8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			embed := discord.AuditEmbed(tt.event)
			if embed.Color != tt.color {
				t.Errorf("Color = %#x, want %#x", embed.Color, tt.color)
			}
			if len(embed.Fields) != tt.nFields {
				t.Fatalf("got %d fields, want %d", len(embed.Fields), tt.nFields)
			}
			if v := embed.Fields[0].Value; v != tt.user {
				t.Errorf("User = %q, want %q", v, tt.user)
			}
			if v := embed.Fields[1].Value; v != tt.channel {
				t.Errorf("Channel = %q, want %q", v, tt.channel)
			}
			if v := embed.Fields[6].Value; v != "N/A" {
				t.Errorf("Rationale = %q, want N/A", v)
			}
		})
	}
}

func TestAuditLog_Post(t *testing.T) {
	t.Parallel()

	api := &mock.API{}
	if err := discord.NewAuditLog(api, "").Post(context.Background(), dispatch.Event{}); err != nil {
		t.Fatalf("disabled audit log: %v", err)
	}
	if n := len(api.Calls()); n != 0 {
		t.Fatalf("disabled audit log made %d calls", n)
	}

	log := discord.NewAuditLog(api, "modlog")
	if err := log.Post(context.Background(), dispatch.Event{ID: "ev"}); err != nil {
		t.Fatalf("Post: %v", err)
	}
	calls := api.CallsTo("ChannelMessageSendEmbed")
	if len(calls) != 1 || calls[0].ChannelID != "modlog" || calls[0].Embed == nil {
		t.Fatalf("embed calls = %+v", calls)
	}

	api.Err = errors.New("unknown channel")
	if err := log.Post(context.Background(), dispatch.Event{ID: "ev"}); err == nil {
		t.Error("expected error from failing channel")
	}
}

func TestPermissionChecker_IsModerator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		roleID string
		member *discordgo.Member
		want   bool
	}{
		{name: "moderator role", roleID: "mods", member: &discordgo.Member{Roles: []string{"x", "mods"}}, want: true},
		{name: "no role", roleID: "mods", member: &discordgo.Member{Roles: []string{"x"}}},
		{name: "manage server", roleID: "mods", member: &discordgo.Member{Permissions: discordgo.PermissionManageGuild}, want: true},
		{name: "administrator", member: &discordgo.Member{Permissions: discordgo.PermissionAdministrator}, want: true},
		{name: "empty role ID grants nothing", member: &discordgo.Member{Roles: []string{""}}},
		{name: "direct message", roleID: "mods"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{Member: tt.member}}
			if got := discord.NewPermissionChecker(tt.roleID).IsModerator(i); got != tt.want {
				t.Errorf("IsModerator() = %v, want %v", got, tt.want)
			}
		})
	}
}

func commandInteraction(name, sub string) *discordgo.InteractionCreate {
	data := discordgo.ApplicationCommandInteractionData{Name: name}
	if sub != "" {
		data.Options = []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: sub, Type: discordgo.ApplicationCommandOptionSubCommand},
		}
	}
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionApplicationCommand,
		Data: data,
	}}
}

func TestCommandRouter(t *testing.T) {
	t.Parallel()

	r := discord.NewCommandRouter()
	var got []string
	r.RegisterCommand("voice", &discordgo.ApplicationCommand{Name: "voice"}, func(discord.Responder, *discordgo.InteractionCreate) {
		got = append(got, "voice")
	})
	r.RegisterHandler("voice/join", func(discord.Responder, *discordgo.InteractionCreate) {
		got = append(got, "voice/join")
	})
	r.RegisterCommand("audit", &discordgo.ApplicationCommand{Name: "audit"}, func(discord.Responder, *discordgo.InteractionCreate) {})

	cmds := r.ApplicationCommands()
	if len(cmds) != 2 || cmds[0].Name != "audit" || cmds[1].Name != "voice" {
		t.Fatalf("ApplicationCommands() = %v", cmds)
	}

	rs := &mock.InteractionResponder{}
	r.Handle(rs, commandInteraction("voice", "join"))
	r.Handle(rs, commandInteraction("voice", ""))
	if strings.Join(got, ",") != "voice/join,voice" {
		t.Errorf("handled = %v", got)
	}

	r.Handle(rs, commandInteraction("nope", ""))
	last := rs.LastResponse()
	if last == nil || last.Data.Content != "Unknown command." || last.Data.Flags != discordgo.MessageFlagsEphemeral {
		t.Errorf("unknown command response = %+v", last)
	}

	before := len(rs.Responses)
	r.Handle(rs, &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{Type: discordgo.InteractionPing}})
	if len(rs.Responses) != before {
		t.Error("non-command interaction should be ignored")
	}
}
