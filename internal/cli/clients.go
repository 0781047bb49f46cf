package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/martijn/vaultkeeper/internal/core/domain"
	"github.com/martijn/vaultkeeper/internal/core/service"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	clientScopes []string
	assumeYes    bool
)

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "Manage OAuth clients",
	Long:  "Manage OAuth client credentials for API authentication",
}

var clientsAddCmd = &cobra.Command{
	Use:   "add <label>",
	Short: "Add a new client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := initServices(cmd.Context())
		if err != nil {
			return err
		}
		defer services.Close()

		client, secret, err := services.Auth.CreateClient(cmd.Context(), args[0], clientScopes)
		if err != nil {
			return fmt.Errorf("failed to create client: %w", err)
		}

		fmt.Println("Client created successfully")
		fmt.Printf("Client ID: %s\n", client.ID)
		fmt.Printf("Client Secret: %s\n", secret)
		fmt.Println("\nIMPORTANT: Save the client secret now. It will not be shown again!")

		return nil
	},
}

var clientsDeleteCmd = &cobra.Command{
	Use:   "delete <client-id>",
	Short: "Delete a client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		clientID := args[0]

		if !assumeYes {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return fmt.Errorf("refusing to delete without confirmation, pass --yes")
			}
			if !confirm(fmt.Sprintf("Are you sure you want to delete client '%s'?", clientID)) {
				fmt.Println("Cancelled")
				return nil
			}
		}

		services, err := initServices(cmd.Context())
		if err != nil {
			return err
		}
		defer services.Close()

		if err := services.Auth.DeleteClient(cmd.Context(), clientID); err != nil {
			return fmt.Errorf("failed to delete client: %w", err)
		}

		fmt.Printf("Client '%s' deleted successfully\n", clientID)
		return nil
	},
}

var clientsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all clients",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := initServices(cmd.Context())
		if err != nil {
			return err
		}
		defer services.Close()

		clients, err := services.Auth.ListClients(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list clients: %w", err)
		}

		if len(clients) == 0 {
			fmt.Println("No clients found")
			return nil
		}

		w := newTable("CLIENT ID", "LABEL", "SCOPES", "CREATED AT")
		for _, client := range clients {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				client.ID,
				client.Label,
				strings.Join(client.Scopes, ","),
				formatTime(&client.CreatedAt),
			)
		}
		return w.Flush()
	},
}

// tokenCmd mints a token for local operators without a client secret
var tokenCmd = &cobra.Command{
	Use:   "token <subject>",
	Short: "Print an admin API token for a local operator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := initServices(cmd.Context())
		if err != nil {
			return err
		}
		defer services.Close()

		token, err := services.Auth.IssueToken(args[0], service.SubjectTypeCLI, []string{domain.ScopeAdmin})
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func confirm(prompt string) bool {
	fmt.Printf("%s (yes/no): ", prompt)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(answer) == "yes"
}

func init() {
	rootCmd.AddCommand(clientsCmd)
	rootCmd.AddCommand(tokenCmd)
	clientsCmd.AddCommand(clientsAddCmd)
	clientsCmd.AddCommand(clientsDeleteCmd)
	clientsCmd.AddCommand(clientsListCmd)

	clientsAddCmd.Flags().StringSliceVar(&clientScopes, "scopes", nil, "Scopes granted to the client (default admin)")
	clientsDeleteCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt")
}
