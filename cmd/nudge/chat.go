package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var chatNickname string

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send a chat message (e.g. \"#todo list\" or \"1\")",
	Long: `Sends a message through the same command parser chat integrations use.
Messages must start with #todo, or be a bare "1" to acknowledge reminders.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatNickname, "nick", "", "Nickname to register with the message")
}

func runChat(cmd *cobra.Command, args []string) error {
	reply, err := newAPIClient().Chat(cmd.Context(), strings.Join(args, " "), chatNickname)
	if err != nil {
		return err
	}
	if !reply.Handled {
		fmt.Println("(not a nudge command)")
		return nil
	}
	fmt.Println(reply.Text)
	return nil
}
