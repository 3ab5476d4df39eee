// Command taskpilot is the TaskPilot CLI client.
package main

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/taskpilot/internal/version"
)

const defaultServer = "http://localhost:9090"

var (
	serverURL string
	token     string
	client    *Client
)

var rootCmd = &cobra.Command{
	Use:           "taskpilot",
	Short:         "TaskPilot CLI",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		if token == "" {
			token = loadToken()
		}
		client = &Client{
			BaseURL:    strings.TrimRight(serverURL, "/"),
			Token:      token,
			HTTPClient: &http.Client{Timeout: 60 * time.Second},
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "taskpilot "+version.String())
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <username|email> <password>",
	Short: "Log in and store the session token",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := client.Login(args[0], args[1])
		if err != nil {
			return err
		}
		path, err := saveToken(resp.Token)
		if err != nil {
			return fmt.Errorf("save token: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (token saved to %s)\n", resp.User.Username, path)
		return nil
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat [message...]",
	Short: "Talk to the assistant; without arguments reads lines from stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return chatOnce(cmd.OutOrStdout(), strings.Join(args, " "))
		}
		sc := bufio.NewScanner(cmd.InOrStdin())
		for {
			fmt.Fprint(cmd.OutOrStdout(), "> ")
			if !sc.Scan() {
				return sc.Err()
			}
			line := strings.TrimSpace(sc.Text())
			switch line {
			case "":
				continue
			case "exit", "quit":
				return nil
			}
			if err := chatOnce(cmd.OutOrStdout(), line); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
			}
		}
	},
}

func chatOnce(w io.Writer, message string) error {
	reply, err := client.Chat(message)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, reply.Response)
	return nil
}

var (
	tasksListID   int64
	tasksOpenOnly bool
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		tasks, err := client.Tasks(tasksListID, tasksOpenOnly)
		if err != nil {
			return err
		}
		printTasks(cmd.OutOrStdout(), tasks)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query...>",
	Short: "Search task titles and descriptions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tasks, err := client.Search(strings.Join(args, " "))
		if err != nil {
			return err
		}
		printTasks(cmd.OutOrStdout(), tasks)
		return nil
	},
}

var listsCmd = &cobra.Command{
	Use:   "lists",
	Short: "List task lists",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		lists, err := client.Lists()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(lists) == 0 {
			fmt.Fprintln(w, "no lists")
			return nil
		}
		fmt.Fprintf(w, "%-6s %-24s %-10s\n", "ID", "NAME", "DONE")
		fmt.Fprintln(w, strings.Repeat("-", 42))
		for _, l := range lists {
			fmt.Fprintf(w, "%-6d %-24s %d/%d\n", l.ID, truncate(l.Icon+" "+l.Name, 23), l.CompletedTasks, l.TotalTasks)
		}
		return nil
	},
}

func printTasks(w io.Writer, tasks []taskRow) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "no tasks")
		return
	}
	fmt.Fprintf(w, "%-6s %-2s %-30s %-8s %-16s %-12s\n", "ID", "", "TITLE", "PRIORITY", "DUE", "LIST")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, t := range tasks {
		mark := "○"
		if t.Completed {
			mark = "✓"
		}
		title := t.Title
		if t.IsImportant {
			title = "★ " + title
		}
		due := strings.TrimSpace(t.DueDate + " " + t.StartTime)
		fmt.Fprintf(w, "%-6d %-2s %-30s %-8s %-16s %-12s\n", t.ID, mark, truncate(title, 29), t.Priority, due, t.ListName)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("TASKPILOT_SERVER", defaultServer), "server URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("TASKPILOT_TOKEN"), "JWT auth token (default: saved login)")

	tasksCmd.Flags().Int64Var(&tasksListID, "list", 0, "only tasks in this list ID")
	tasksCmd.Flags().BoolVar(&tasksOpenOnly, "open", false, "hide completed tasks")

	rootCmd.AddCommand(versionCmd, loginCmd, chatCmd, tasksCmd, searchCmd, listsCmd)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
