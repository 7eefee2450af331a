package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/gookit/color"
	"github.com/samber/lo"
	"github.com/spf13/afero"

	"github.com/nfrund/chatclient/internal/domain"
)

// printUsers writes one line per user, marking those online.
func printUsers(w io.Writer, users []domain.User, isOnline func(string) bool) {
	if len(users) == 0 {
		fmt.Fprintln(w, "No users found.")
		return
	}
	for _, u := range users {
		marker := color.Gray.Sprint("○")
		if isOnline != nil && isOnline(u.ID) {
			marker = color.Green.Sprint("●")
		}
		fmt.Fprintf(w, "%s %-24s %s\n", marker, u.FullName, color.Gray.Sprint(u.ID))
	}
}

// formatMessage renders a message as "[15:04] name: text". Messages sent by
// selfID are attributed to "you".
func formatMessage(m domain.Message, selfID string, partner *domain.User) string {
	name := m.SenderID
	switch {
	case selfID != "" && m.SenderID == selfID:
		name = color.Green.Sprint("you")
	case partner != nil && m.SenderID == partner.ID && partner.FullName != "":
		name = color.Cyan.Sprint(partner.FullName)
	}

	body := m.Text
	if m.Image != "" {
		body = lo.Ternary(body == "", "[image]", body+" [image]")
	}

	stamp := "--:--"
	if !m.CreatedAt.IsZero() {
		stamp = m.CreatedAt.Local().Format("15:04")
	}
	return fmt.Sprintf("[%s] %s: %s", stamp, name, body)
}

func printMessages(w io.Writer, messages []domain.Message, selfID string, partner *domain.User) {
	for _, m := range messages {
		fmt.Fprintln(w, formatMessage(m, selfID, partner))
	}
}

// transcript is the JSON document written by "history --out".
type transcript struct {
	ExportedAt time.Time        `json:"exportedAt"`
	Partner    domain.User      `json:"partner"`
	Messages   []domain.Message `json:"messages"`
}

// writeTranscript stores the conversation as indented JSON at path,
// creating parent directories.
func writeTranscript(fs afero.Fs, path string, partner domain.User, messages []domain.Message, now time.Time) error {
	if messages == nil {
		messages = []domain.Message{}
	}
	data, err := json.MarshalIndent(transcript{
		ExportedAt: now.UTC(),
		Partner:    partner,
		Messages:   messages,
	}, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return afero.WriteFile(fs, path, data, 0o644)
}

// resolveUser finds id among users, falling back to a bare user.
func resolveUser(users []domain.User, id string) domain.User {
	if u, ok := lo.Find(users, func(u domain.User) bool { return u.ID == id }); ok {
		return u
	}
	return domain.User{ID: id}
}
