// Package reactionroles keeps a self-assignable role menu in sync: one embed
// in a configured channel, one reaction per role, and guild roles that follow
// the reactions.
package reactionroles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/ryubing/robocop-go/internal/config"
	"github.com/ryubing/robocop-go/internal/logging"
)

const (
	// StateFileName holds the id of the menu message under <state>/data.
	StateFileName = "reactionroles.json"

	MenuTitle  = "**Select your roles**"
	MenuFooter = "To remove a role, simply remove the corresponding reaction."
	MenuColor  = 27491

	defaultIntro     = "React to this message with the emojis given below to get your 'Looking for LDN game' roles."
	reconcileWorkers = 4
)

// ErrMessageNotFound is returned by a Platform when the menu message is gone.
var ErrMessageNotFound = errors.New("message not found")

// Embed is the platform-neutral menu message.
type Embed struct {
	Title       string
	Description string
	Footer      string
	Color       int
}

// Message is what the manager needs to know about a posted message.
type Message struct {
	ID        string
	Reactions []string // emojis currently on the message
}

// ReactionEvent is a live reaction added to or removed from a message.
type ReactionEvent struct {
	GuildID   string
	ChannelID string
	MessageID string
	UserID    string
	Emoji     string
	Bot       bool
}

// Platform is the subset of the chat API the role menu uses.
type Platform interface {
	Message(ctx context.Context, channelID, messageID string) (*Message, error)
	SendEmbed(ctx context.Context, channelID string, e Embed) (string, error)
	EditEmbed(ctx context.Context, channelID, messageID string, e Embed) error
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
	ClearReaction(ctx context.Context, channelID, messageID, emoji string) error
	RemoveUserReaction(ctx context.Context, channelID, messageID, emoji, userID string) error
	// ReactionUsers lists the non-bot users that reacted with emoji.
	ReactionUsers(ctx context.Context, channelID, messageID, emoji string) ([]string, error)
	RoleIDByName(ctx context.Context, guildID, name string) (string, error)
	RoleMembers(ctx context.Context, guildID, roleID string) ([]string, error)
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
}

// Manager owns the role menu for one guild.
type Manager struct {
	platform  Platform
	guildID   string
	menu      config.ReactionRolesConfig
	statePath string
	log       *logging.SecureLogger

	mu        sync.RWMutex
	messageID string
}

// NewManager creates a manager persisting its state under <stateDir>/data.
func NewManager(platform Platform, guildID string, menu config.ReactionRolesConfig, stateDir string, log *logging.SecureLogger) *Manager {
	if log == nil {
		log = logging.Nop()
	}
	return &Manager{
		platform:  platform,
		guildID:   guildID,
		menu:      menu,
		statePath: filepath.Join(stateDir, "data", StateFileName),
		log:       log.Component("reactionroles"),
	}
}

// MessageID returns the id of the menu message, empty before Setup.
func (m *Manager) MessageID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.messageID
}

// Render builds the menu embed. Roles named "Prefix (Game)" are listed by
// game; any other role gets its own sentence.
func Render(menu config.ReactionRolesConfig) Embed {
	intro := menu.Intro
	if intro == "" {
		intro = defaultIntro
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%s* \n\n", intro)
	for _, r := range menu.Roles {
		if inner, ok := parenthesized(r.Role); ok {
			fmt.Fprintf(&b, "%s for _%s_ \n", r.Emoji, inner)
		} else {
			fmt.Fprintf(&b, "\nReact %s to get the \"%s\" role.", r.Emoji, r.Role)
		}
	}

	return Embed{
		Title:       MenuTitle,
		Description: b.String(),
		Footer:      MenuFooter,
		Color:       MenuColor,
	}
}

func parenthesized(s string) (string, bool) {
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return "", false
	}
	end := strings.IndexByte(s[open+1:], ')')
	if end < 0 {
		return "", false
	}
	return s[open+1 : open+1+end], true
}

// Setup finds or posts the menu, refreshes its text and reactions, and
// reconciles roles that changed while the bot was offline.
func (m *Manager) Setup(ctx context.Context) error {
	channelID := m.menu.ChannelID
	embed := Render(m.menu)

	msg, err := m.findMenu(ctx)
	if err != nil {
		return err
	}

	if msg == nil {
		id, err := m.platform.SendEmbed(ctx, channelID, embed)
		if err != nil {
			return fmt.Errorf("failed to post role menu: %w", err)
		}
		if err := m.saveState(id); err != nil {
			return err
		}
		msg = &Message{ID: id}
		m.log.Info().Str("message_id", id).Msg("Posted role menu")
	} else if err := m.platform.EditEmbed(ctx, channelID, msg.ID, embed); err != nil {
		return fmt.Errorf("failed to update role menu: %w", err)
	}

	m.mu.Lock()
	m.messageID = msg.ID
	m.mu.Unlock()

	present := make(map[string]bool, len(msg.Reactions))
	for _, e := range msg.Reactions {
		present[config.EmojiKey(e)] = true
	}

	// reactions are added one by one so the menu keeps its order
	for _, r := range m.menu.Roles {
		if present[config.EmojiKey(r.Emoji)] {
			continue
		}
		if err := m.platform.AddReaction(ctx, channelID, msg.ID, r.Emoji); err != nil {
			return fmt.Errorf("failed to add reaction %s: %w", r.Emoji, err)
		}
	}

	for _, e := range msg.Reactions {
		if _, ok := m.menu.RoleFor(e); ok {
			continue
		}
		if err := m.platform.ClearReaction(ctx, channelID, msg.ID, e); err != nil {
			m.log.Warn().Err(err).Str("emoji", e).Msg("Failed to clear unknown reaction")
		}
	}

	return m.Reconcile(ctx)
}

// findMenu returns the stored menu message, or nil when it has to be posted.
func (m *Manager) findMenu(ctx context.Context) (*Message, error) {
	id, err := m.loadState()
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, nil
	}

	msg, err := m.platform.Message(ctx, m.menu.ChannelID, id)
	if errors.Is(err, ErrMessageNotFound) {
		m.log.Warn().Str("message_id", id).Msg("Stored role menu is gone, posting a new one")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch role menu: %w", err)
	}
	return msg, nil
}

// Reconcile makes role membership match the current reactions. Every role is
// processed even when others fail; the errors are returned together.
func (m *Manager) Reconcile(ctx context.Context) error {
	messageID := m.MessageID()
	if messageID == "" {
		return fmt.Errorf("role menu is not set up")
	}

	var (
		mu     sync.Mutex
		result *multierror.Error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileWorkers)

	for _, r := range m.menu.Roles {
		g.Go(func() error {
			if err := m.reconcileRole(gctx, messageID, r); err != nil {
				mu.Lock()
				result = multierror.Append(result, fmt.Errorf("%s: %w", r.Role, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return result.ErrorOrNil()
}

func (m *Manager) reconcileRole(ctx context.Context, messageID string, r config.RoleMapping) error {
	roleID, err := m.platform.RoleIDByName(ctx, m.guildID, r.Role)
	if err != nil {
		return err
	}
	reactors, err := m.platform.ReactionUsers(ctx, m.menu.ChannelID, messageID, r.Emoji)
	if err != nil {
		return err
	}
	members, err := m.platform.RoleMembers(ctx, m.guildID, roleID)
	if err != nil {
		return err
	}

	var result *multierror.Error
	added, removed := 0, 0
	for _, u := range reactors {
		if slices.Contains(members, u) {
			continue
		}
		if err := m.platform.AddRole(ctx, m.guildID, u, roleID); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		added++
	}
	for _, u := range members {
		if slices.Contains(reactors, u) {
			continue
		}
		if err := m.platform.RemoveRole(ctx, m.guildID, u, roleID); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		removed++
	}

	if added+removed > 0 {
		m.log.Info().
			Str("role", r.Role).
			Int("added", added).
			Int("removed", removed).
			Msg("Reconciled role")
	}
	return result.ErrorOrNil()
}

// HandleReaction applies a live reaction change to the menu.
func (m *Manager) HandleReaction(ctx context.Context, ev ReactionEvent, added bool) error {
	if ev.Bot || ev.MessageID == "" || ev.MessageID != m.MessageID() {
		return nil
	}

	roleName, ok := m.menu.RoleFor(ev.Emoji)
	if !ok {
		if !added {
			return nil
		}
		return m.platform.RemoveUserReaction(ctx, ev.ChannelID, ev.MessageID, ev.Emoji, ev.UserID)
	}

	roleID, err := m.platform.RoleIDByName(ctx, m.guildID, roleName)
	if err != nil {
		return fmt.Errorf("failed to resolve role '%s': %w", roleName, err)
	}

	if added {
		err = m.platform.AddRole(ctx, m.guildID, ev.UserID, roleID)
	} else {
		err = m.platform.RemoveRole(ctx, m.guildID, ev.UserID, roleID)
	}
	if err != nil {
		return fmt.Errorf("failed to update role '%s': %w", roleName, err)
	}

	m.log.Debug().
		Str("role", roleName).
		Str("user_id", ev.UserID).
		Bool("added", added).
		Msg("Role updated from reaction")
	return nil
}

// loadState reads the stored menu id. Older state files stored it as a number.
func (m *Manager) loadState() (string, error) {
	data, err := os.ReadFile(m.statePath)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read role menu state: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return "", fmt.Errorf("role menu state %s is not valid JSON", m.statePath)
	}
	return gjson.GetBytes(data, "id").String(), nil
}

func (m *Manager) saveState(messageID string) error {
	if err := os.MkdirAll(filepath.Dir(m.statePath), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	data, err := json.Marshal(struct {
		ID string `json:"id"`
	}{ID: messageID})
	if err != nil {
		return fmt.Errorf("failed to encode role menu state: %w", err)
	}
	if err := os.WriteFile(m.statePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write role menu state: %w", err)
	}
	return nil
}
