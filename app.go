package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"realtalk/internal/bootstrap"
	"realtalk/internal/domain"
	"realtalk/internal/ports"
	"realtalk/internal/settings"
	"realtalk/internal/usecase"
)

const (
	eventStatus       = "realtalk:status"
	eventType         = "realtalk:event-type"
	eventConversation = "realtalk:conversation"
	eventDraft        = "realtalk:draft"
	eventError        = "realtalk:error"
)

var errEmptyConversation = errors.New("conversation is empty")

// App is the Wails application root.
type App struct {
	ctx context.Context

	services  bootstrap.Services
	clipboard ports.Clipboard
	bootErr   error
}

func NewApp() *App {
	return &App{clipboard: &wailsClipboard{}}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = services
	a.ConnectionStatusChanged(domain.StatusDisconnected, domain.StatusReasonIdle)
}

func (a *App) shutdown(_ context.Context) {
	if a.services.Controller != nil {
		a.services.Controller.Stop()
	}
}

// StartSession connects using the environment configuration merged with
// stored settings.
func (a *App) StartSession() (domain.Snapshot, error) {
	if err := a.requireReady(); err != nil {
		return domain.Snapshot{}, err
	}

	cfg, err := a.services.SessionConfig()
	if err != nil {
		a.SessionError(domain.ErrorCodeSettings, err.Error())
	}

	if err := a.services.Controller.Start(a.ctx, cfg); err != nil {
		if errors.Is(err, usecase.ErrSessionSuperseded) {
			return a.services.Controller.Snapshot(), nil
		}
		if errors.Is(err, usecase.ErrUnknownProvider) {
			a.SessionError(domain.ErrorCodeStartup, err.Error())
		}
		return a.services.Controller.Snapshot(), err
	}
	return a.services.Controller.Snapshot(), nil
}

// StopSession disconnects the current session.
func (a *App) StopSession() domain.Snapshot {
	if a.services.Controller == nil {
		return a.GetSnapshot()
	}
	a.services.Controller.Stop()
	return a.services.Controller.Snapshot()
}

// SendText sends a typed user message.
func (a *App) SendText(text string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	err := a.services.Controller.SendUserText(text)
	if err != nil && domain.KindOf(err) != domain.ErrorKindState {
		a.SessionError(domain.ErrorCodeDataChannel, err.Error())
	}
	return err
}

// SetDraft records the unsent text input.
func (a *App) SetDraft(text string) {
	if a.services.Controller == nil {
		return
	}
	a.services.Controller.SetPendingInput(text)
}

// GetSnapshot returns the observable session state.
func (a *App) GetSnapshot() domain.Snapshot {
	if a.services.Controller == nil {
		snapshot := domain.Snapshot{Status: domain.StatusDisconnected, Conversation: []domain.ConversationEntry{}}
		if a.bootErr != nil {
			snapshot.LastError = a.bootErr.Error()
		}
		return snapshot
	}
	return a.services.Controller.Snapshot()
}

// GetSettings returns the stored user preferences.
func (a *App) GetSettings() (settings.Settings, error) {
	if err := a.requireReady(); err != nil {
		return settings.Settings{}, err
	}
	return a.services.Settings.Load()
}

// SaveSettings persists user preferences. They apply from the next session.
func (a *App) SaveSettings(values settings.Settings) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.services.Settings.Save(values); err != nil {
		a.SessionError(domain.ErrorCodeSettings, err.Error())
		return err
	}
	return nil
}

// CopyConversation writes the rendered conversation to the clipboard.
func (a *App) CopyConversation() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	text := formatConversation(a.services.Controller.Conversation())
	if text == "" {
		return errEmptyConversation
	}
	if err := a.clipboard.SetText(a.ctx, text); err != nil {
		a.SessionError(domain.ErrorCodeClipboard, err.Error())
		return err
	}
	return nil
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	if a.services.Controller == nil {
		return map[string]string{}
	}

	cfg, _ := a.services.SessionConfig()
	cfg = cfg.WithDefaults()
	hasKey := "false"
	if cfg.APIKey != "" {
		hasKey = "true"
	}
	return map[string]string{
		"provider":         cfg.Provider.Profile().Name,
		"signaling":        string(cfg.Provider.Profile().Protocol),
		"model":            cfg.Model,
		"voice":            cfg.Voice,
		"apiKeyConfigured": hasKey,
		"settingsFile":     a.services.Settings.Path(),
		"audioInput":       a.services.Config.Audio.InputDevice,
		"audioInputFormat": a.services.Config.Audio.InputFormat,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services.Controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// ConnectionStatusChanged emits session lifecycle updates to the frontend.
func (a *App) ConnectionStatusChanged(status domain.ConnectionStatus, reason domain.StatusReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventStatus, map[string]string{
		"status":  string(status),
		"reason":  string(reason),
		"message": statusReasonMessage(reason),
	})
}

// EventTypeChanged emits the type of the latest data channel event.
func (a *App) EventTypeChanged(label string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventType, map[string]string{"label": label})
}

// ConversationChanged emits the full rendered conversation.
func (a *App) ConversationChanged(entries []domain.ConversationEntry) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventConversation, entries)
}

// PendingInputChanged emits the current draft.
func (a *App) PendingInputChanged(text string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventDraft, map[string]string{"text": text})
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func statusReasonMessage(reason domain.StatusReason) string {
	switch reason {
	case domain.StatusReasonIdle:
		return "Disconnected"
	case domain.StatusReasonSessionStarting:
		return "Connecting..."
	case domain.StatusReasonSessionRestarting:
		return "Reconnecting; previous session closed"
	case domain.StatusReasonSessionConnected:
		return "Connected"
	case domain.StatusReasonSessionStopped:
		return "Session ended"
	case domain.StatusReasonSignalingFailed:
		return "Connection failed"
	case domain.StatusReasonPeerConnectionLost:
		return "Connection lost"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeSignaling:
		return "Could not connect to the realtime service"
	case domain.ErrorCodeAudioCapture:
		return "Microphone unavailable; text only"
	case domain.ErrorCodeAudioStream:
		return "Audio streaming issue"
	case domain.ErrorCodeDataChannel:
		return "Message could not be sent"
	case domain.ErrorCodeService:
		return "Realtime service error"
	case domain.ErrorCodeSettings:
		return "Settings could not be saved or loaded"
	case domain.ErrorCodeClipboard:
		return "Clipboard write failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

func formatConversation(entries []domain.ConversationEntry) string {
	var b strings.Builder
	for _, entry := range entries {
		text := strings.TrimSpace(entry.Text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		speaker := "Assistant"
		if entry.Role == domain.RoleUser {
			speaker = "You"
		}
		b.WriteString(speaker)
		b.WriteString(": ")
		b.WriteString(text)
	}
	return b.String()
}

type wailsClipboard struct{}

func (c *wailsClipboard) SetText(ctx context.Context, text string) error {
	return runtime.ClipboardSetText(ctx, text)
}
