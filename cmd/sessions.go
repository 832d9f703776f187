package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/webchat-ai/webchat/internal/ui"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage saved conversations",
	Long: `List and delete saved conversations.

Examples:
  webchat sessions                # list conversations
  webchat sessions delete 2       # delete conversation 2
  webchat sessions clear          # delete all conversations`,
	RunE: runSessionsList, // Default to list
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	RunE:  runSessionsList,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <n>",
	Short: "Delete one conversation by number",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

var sessionsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all conversations",
	RunE:  runSessionsClear,
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	sessionsCmd.AddCommand(sessionsClearCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Println(a.styles.TableHeader.Render("  #  title                                     updated"))
	listSessions(a)
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := strconv.Atoi(args[0])
	sessions := a.sessions.Sessions()
	if err != nil || n < 1 || n > len(sessions) {
		return fmt.Errorf("no such session %q", args[0])
	}
	doomed := sessions[n-1]
	a.sessions.DeleteSession(ctx, doomed.ID)
	fmt.Printf("deleted %s\n", ui.Truncate(doomed.Title, 40))
	return nil
}

func runSessionsClear(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	sessions := a.sessions.Sessions()
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	a.sessions.BatchDelete(ctx, ids)
	fmt.Printf("deleted %d conversations\n", len(ids))
	return nil
}
