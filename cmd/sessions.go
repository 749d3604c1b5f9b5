package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gennadis/virtualparent/internal/chat"
	"github.com/gennadis/virtualparent/internal/session"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
)

const nameWidth = 40

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage chat sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List chat sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, closeFn, err := openRegistry(cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		sessions, err := registry.List()
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		active, err := activeIfAny(registry, sessions)
		if err != nil {
			return err
		}

		printSessions(cmd.OutOrStdout(), sessions, active)
		return nil
	},
}

var sessionsRenameCmd = &cobra.Command{
	Use:   "rename <n|id> <name>",
	Short: "Rename a session",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, closeFn, err := openRegistry(cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		sessions, err := registry.List()
		if err != nil {
			return err
		}
		target, err := resolveSession(sessions, args[0])
		if err != nil {
			return err
		}
		name := strings.Join(args[1:], " ")
		if err := registry.Rename(target.ID, name); err != nil {
			return fmt.Errorf("failed to rename session: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %q\n", idStyle.Render(target.ID), strings.TrimSpace(name))
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <n|id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, closeFn, err := openRegistry(cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		sessions, err := registry.List()
		if err != nil {
			return err
		}
		target, err := resolveSession(sessions, args[0])
		if err != nil {
			return err
		}
		active, err := activeIfAny(registry, sessions)
		if err != nil {
			return err
		}

		if err := registry.Delete(target.ID); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		if target.ID == active {
			if err := reselect(registry); err != nil {
				return err
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", target.DisplayName())
		return nil
	},
}

// reselect activates the newest remaining session, or a new one.
func reselect(registry *session.Registry) error {
	remaining, err := registry.List()
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		_, err := registry.Create()
		return err
	}
	return registry.SetActive(remaining[0].ID)
}

// activeIfAny returns the active session id without creating one.
func activeIfAny(registry *session.Registry, sessions []chat.Session) (string, error) {
	if len(sessions) == 0 {
		return "", nil
	}
	return registry.ActiveID()
}

// resolveSession finds a session by 1-based list position, id or id prefix.
func resolveSession(sessions []chat.Session, ref string) (chat.Session, error) {
	ref = strings.TrimSpace(ref)
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(sessions) {
		return sessions[n-1], nil
	}

	var matches []chat.Session
	for _, s := range sessions {
		if s.ID == ref {
			return s, nil
		}
		if ref != "" && strings.HasPrefix(s.ID, ref) {
			matches = append(matches, s)
		}
	}
	switch len(matches) {
	case 0:
		return chat.Session{}, fmt.Errorf("%q: %w", ref, session.ErrSessionNotFound)
	case 1:
		return matches[0], nil
	default:
		return chat.Session{}, errors.New("ambiguous session id prefix " + strconv.Quote(ref))
	}
}

func printSessions(w io.Writer, sessions []chat.Session, active string) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No sessions yet."))
		return
	}

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Sessions (%d)", len(sessions))))
	for i, s := range sessions {
		marker := "  "
		if s.ID == active {
			marker = activeStyle.Render("* ")
		}
		name := runewidth.FillRight(runewidth.Truncate(s.DisplayName(), nameWidth, "…"), nameWidth)
		fmt.Fprintf(w, "%s%3d  %s  %s  %s\n",
			marker,
			i+1,
			name,
			dimStyle.Render(s.Created.Local().Format(time.DateTime)),
			idStyle.Render(s.ID),
		)
	}
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd, sessionsRenameCmd, sessionsDeleteCmd)
	rootCmd.AddCommand(sessionsCmd)
}
