// ABOUTME: Mode management - selection menu, detail view and the terminal
// ABOUTME: actions of the two-step add/edit flow driven by the transport router

package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zagrichanskiy/mr-gpt-ai-bot/internal/store"
)

// ErrInvalidState reports a mode-entry terminal action reached without its
// precondition (no pending title, no mode being edited). The flow controller
// owning the multi-step entry is expected to prevent this.
var ErrInvalidState = errors.New("invalid mode entry state")

// ListModesForSelection shows the mode selection menu.
func (m *Manager) ListModesForSelection(ctx context.Context, chatID int64) error {
	return m.submit(ctx, chatID, func(ctx context.Context, _ *chatState) error {
		modes, err := m.store.ListModes(ctx, chatID)
		if err != nil {
			return fmt.Errorf("listing modes: %w", err)
		}

		var text string
		if len(modes) > 0 {
			if mode := m.currentMode(ctx, chatID); mode != nil {
				text = fmt.Sprintf("Current mode: %q. Change to mode:", mode.Title)
			} else {
				text = "Select a mode:"
			}
		} else {
			text = "No modes available. Tap \"Add\" to create a new mode."
		}

		keyboard := make([][]Button, 0, len(modes)+1)
		for _, mode := range modes {
			keyboard = append(keyboard, []Button{{Label: mode.Title, Data: "/mode_select_" + mode.ID}})
		}
		keyboard = append(keyboard, []Button{
			{Label: "Clear", Data: "/mode_clear"},
			{Label: "Add", Data: "/mode_add"},
			{Label: "Show", Data: "/mode_show"},
		})

		_, err = m.transport.SendMessage(ctx, chatID, text, &SendOptions{Keyboard: keyboard})
		return err
	})
}

// SelectMode makes a mode current for the chat, editing the menu message in
// place. An empty modeID clears the current mode.
func (m *Manager) SelectMode(ctx context.Context, chatID int64, modeID string, menuMessageID int) error {
	return m.submit(ctx, chatID, func(ctx context.Context, _ *chatState) error {
		if modeID == "" {
			if err := m.store.SetCurrentMode(ctx, chatID, ""); err != nil {
				return fmt.Errorf("clearing mode: %w", err)
			}
			return m.transport.EditMessageText(ctx, chatID, menuMessageID, "Cleared mode.", nil)
		}

		mode, err := m.store.GetMode(ctx, chatID, modeID)
		if errors.Is(err, store.ErrNotFound) {
			_, serr := m.transport.SendMessage(ctx, chatID, "Failed to find that mode. Try sending a new message.", nil)
			return serr
		}
		if err != nil {
			return fmt.Errorf("loading mode: %w", err)
		}

		if err := m.store.SetCurrentMode(ctx, chatID, mode.ID); err != nil {
			return fmt.Errorf("setting current mode: %w", err)
		}

		m.logger.Info("mode selected", "chat_id", chatID, "mode_id", mode.ID)
		return m.transport.EditMessageText(ctx, chatID, menuMessageID, fmt.Sprintf("Changed mode to %q.", mode.Title), nil)
	})
}

// ShowModes lists modes for editing.
func (m *Manager) ShowModes(ctx context.Context, chatID int64) error {
	return m.submit(ctx, chatID, func(ctx context.Context, _ *chatState) error {
		modes, err := m.store.ListModes(ctx, chatID)
		if err != nil {
			return fmt.Errorf("listing modes: %w", err)
		}

		if len(modes) == 0 {
			_, err := m.transport.SendMessage(ctx, chatID, "No modes defined. Send /mode to add a new mode.", nil)
			return err
		}

		keyboard := make([][]Button, 0, len(modes))
		for _, mode := range modes {
			keyboard = append(keyboard, []Button{{Label: mode.Title, Data: "/mode_detail_" + mode.ID}})
		}
		_, err = m.transport.SendMessage(ctx, chatID, "Select a mode to edit:", &SendOptions{Keyboard: keyboard})
		return err
	})
}

// ShowModeDetail displays a mode's prompt with edit/delete actions.
func (m *Manager) ShowModeDetail(ctx context.Context, chatID int64, modeID string) error {
	return m.submit(ctx, chatID, func(ctx context.Context, _ *chatState) error {
		mode, err := m.store.GetMode(ctx, chatID, modeID)
		if errors.Is(err, store.ErrNotFound) {
			_, serr := m.transport.SendMessage(ctx, chatID, "Invalid mode.", nil)
			return serr
		}
		if err != nil {
			return fmt.Errorf("loading mode: %w", err)
		}

		text := fmt.Sprintf("Mode %q:\n%s", mode.Title, mode.Prompt)
		opts := &SendOptions{Keyboard: [][]Button{{
			{Label: "Edit", Data: "/mode_edit_" + mode.ID},
			{Label: "Delete", Data: "/mode_delete_" + mode.ID},
		}}}
		_, err = m.transport.SendMessage(ctx, chatID, text, opts)
		return err
	})
}

// BeginModeEdit marks a mode as being edited and prompts for its new prompt.
// Returns false when the mode does not exist.
func (m *Manager) BeginModeEdit(ctx context.Context, chatID int64, modeID string) (bool, error) {
	var ok bool
	err := m.submit(ctx, chatID, func(ctx context.Context, st *chatState) error {
		mode, err := m.store.GetMode(ctx, chatID, modeID)
		if errors.Is(err, store.ErrNotFound) {
			_, serr := m.transport.SendMessage(ctx, chatID, "Invalid mode.", nil)
			return serr
		}
		if err != nil {
			return fmt.Errorf("loading mode: %w", err)
		}

		st.editingMode = mode
		ok = true
		_, err = m.transport.SendMessage(ctx, chatID, fmt.Sprintf("Enter a new prompt for mode %q:", mode.Title), nil)
		return err
	})
	return ok, err
}

// SetPendingModeTitle stores the title entered in the first step of the
// add-mode flow.
func (m *Manager) SetPendingModeTitle(ctx context.Context, chatID int64, title string) error {
	return m.submit(ctx, chatID, func(_ context.Context, st *chatState) error {
		st.pendingModeTitle = title
		return nil
	})
}

// FinishModeEntry completes the add or edit flow with the entered prompt.
// For an edit the mode's prompt is replaced; for an add a new mode is created
// and, if the chat has no current mode yet, selected as current.
func (m *Manager) FinishModeEntry(ctx context.Context, chatID int64, prompt string) error {
	return m.submit(ctx, chatID, func(ctx context.Context, st *chatState) error {
		if editing := st.editingMode; editing != nil {
			st.editingMode = nil
			editing.Prompt = prompt
			if err := m.store.PutMode(ctx, chatID, editing); err != nil {
				return fmt.Errorf("updating mode: %w", err)
			}
			_, err := m.transport.SendMessage(ctx, chatID, "Mode updated.", nil)
			return err
		}

		title := st.pendingModeTitle
		st.pendingModeTitle = ""
		if title == "" {
			return ErrInvalidState
		}

		mode := &store.Mode{
			ID:        uuid.New().String(),
			Title:     title,
			Prompt:    prompt,
			CreatedAt: time.Now(),
		}
		if err := m.store.PutMode(ctx, chatID, mode); err != nil {
			return fmt.Errorf("adding mode: %w", err)
		}
		if m.currentMode(ctx, chatID) == nil {
			if err := m.store.SetCurrentMode(ctx, chatID, mode.ID); err != nil {
				return fmt.Errorf("setting first mode current: %w", err)
			}
		}

		m.logger.Info("mode added", "chat_id", chatID, "mode_id", mode.ID)
		_, err := m.transport.SendMessage(ctx, chatID, "Mode added.", nil)
		return err
	})
}

// CancelModeEntry aborts a pending add/edit flow.
func (m *Manager) CancelModeEntry(ctx context.Context, chatID int64) error {
	return m.submit(ctx, chatID, func(ctx context.Context, st *chatState) error {
		st.pendingModeTitle = ""
		st.editingMode = nil
		_, err := m.transport.SendMessage(ctx, chatID, "Mode creation cancelled.", nil)
		return err
	})
}

// DeleteMode removes a mode, editing the menu message with the outcome. A
// deleted mode that was current leaves a dangling reference, which reads as
// "no mode" from then on.
func (m *Manager) DeleteMode(ctx context.Context, chatID int64, modeID string, menuMessageID int) error {
	return m.submit(ctx, chatID, func(ctx context.Context, _ *chatState) error {
		mode, err := m.store.GetMode(ctx, chatID, modeID)
		if errors.Is(err, store.ErrNotFound) {
			_, serr := m.transport.SendMessage(ctx, chatID, "Invalid mode.", nil)
			return serr
		}
		if err != nil {
			return fmt.Errorf("loading mode: %w", err)
		}

		if err := m.store.DeleteMode(ctx, chatID, mode.ID); err != nil {
			return fmt.Errorf("deleting mode: %w", err)
		}

		m.logger.Info("mode deleted", "chat_id", chatID, "mode_id", mode.ID)
		return m.transport.EditMessageText(ctx, chatID, menuMessageID, fmt.Sprintf("Mode %q deleted.", mode.Title), nil)
	})
}
