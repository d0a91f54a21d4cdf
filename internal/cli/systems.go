package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"extsys/internal/models"
)

type addFlags struct {
	id           string
	name         string
	searchKey    string
	protocol     string
	inactive     bool
	url          string
	method       string
	timeout      int
	authType     string
	username     string
	password     string
	clientID     string
	clientSecret string
	tokenURL     string
}

func newSystemsCommand(r *runtime) *cobra.Command {
	systemsCmd := &cobra.Command{
		Use:   "systems",
		Short: "Manage external system records",
	}

	var asJSON bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List external systems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.listSystems(cmd, asJSON)
		},
	}
	listCmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")

	var flags addFlags
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create or replace an external system",
		Long: `Create or replace an external system and its HTTP configuration.
The password and the OAuth2 client secret are encrypted before they are stored.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.addSystem(cmd, flags)
		},
	}
	f := addCmd.Flags()
	f.StringVar(&flags.id, "id", "", "record id (generated when empty)")
	f.StringVar(&flags.name, "name", "", "display name")
	f.StringVar(&flags.searchKey, "search-key", "", "unique key used to look the system up")
	f.StringVar(&flags.protocol, "protocol", models.ProtocolHTTP, "HTTP or REDIS_STREAM")
	f.BoolVar(&flags.inactive, "inactive", false, "store the system as inactive")
	f.StringVar(&flags.url, "url", "", "base URL of the HTTP configuration")
	f.StringVar(&flags.method, "method", "POST", "request method: POST, PUT, GET or DELETE")
	f.IntVar(&flags.timeout, "request-timeout", 0, "per-request timeout in seconds, at most 30")
	f.StringVar(&flags.authType, "auth", models.AuthNone, "NOAUTH, BASIC, BASIC_ALWAYS_HEADER or OAUTH2")
	f.StringVar(&flags.username, "username", "", "basic authentication username")
	f.StringVar(&flags.password, "password", "", "basic authentication password")
	f.StringVar(&flags.clientID, "client-id", "", "OAuth2 client id")
	f.StringVar(&flags.clientSecret, "client-secret", "", "OAuth2 client secret")
	f.StringVar(&flags.tokenURL, "token-url", "", "OAuth2 authorization server URL")
	addCmd.MarkFlagRequired("name")
	addCmd.MarkFlagRequired("search-key")

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an external system and its configurations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := r.context(cmd)
			defer cancel()
			if err := r.app.Store.DeleteExternalSystem(ctx, args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return err
		},
	}

	systemsCmd.AddCommand(listCmd, addCmd, deleteCmd)
	return systemsCmd
}

func (r *runtime) listSystems(cmd *cobra.Command, asJSON bool) error {
	ctx, cancel := r.context(cmd)
	defer cancel()

	systems, err := r.app.Store.ListExternalSystems(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if asJSON {
		if systems == nil {
			systems = []*models.ExternalSystem{}
		}
		return printJSON(out, systems)
	}
	if len(systems) == 0 {
		fmt.Fprintln(out, "No external systems found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSEARCH KEY\tPROTOCOL\tACTIVE\tURL")
	for _, s := range systems {
		url := "-"
		if cfg, ok := s.ActiveHTTPConfig(); ok {
			url = cfg.RequestMethod + " " + cfg.URL
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n", s.ID, s.Name, s.SearchKey, s.Protocol, s.Active, url)
	}
	return w.Flush()
}

func (r *runtime) addSystem(cmd *cobra.Command, flags addFlags) error {
	ctx, cancel := r.context(cmd)
	defer cancel()

	system := &models.ExternalSystem{
		ID:        flags.id,
		Name:      flags.name,
		SearchKey: flags.searchKey,
		Protocol:  strings.ToUpper(flags.protocol),
		Active:    !flags.inactive,
	}

	if flags.url != "" {
		password, err := r.app.Secrets.Encrypt(flags.password)
		if err != nil {
			return fmt.Errorf("failed to encrypt password: %w", err)
		}
		secret, err := r.app.Secrets.Encrypt(flags.clientSecret)
		if err != nil {
			return fmt.Errorf("failed to encrypt client secret: %w", err)
		}

		system.HTTP = []models.HTTPConfig{{
			URL:                         flags.url,
			RequestMethod:               flags.method,
			TimeoutSeconds:              flags.timeout,
			AuthorizationType:           strings.ToUpper(flags.authType),
			Username:                    flags.username,
			EncryptedPassword:           password,
			OAuth2ClientID:              flags.clientID,
			EncryptedOAuth2ClientSecret: secret,
			OAuth2AuthServerURL:         flags.tokenURL,
			Active:                      true,
		}}
	}

	if system.ID != "" {
		// keep the configuration ids of a replaced record
		if existing, err := r.app.Store.GetExternalSystem(ctx, system.ID); err == nil && len(system.HTTP) > 0 {
			if cfg, ok := existing.ActiveHTTPConfig(); ok {
				system.HTTP[0].ID = cfg.ID
				system.HTTP[0].CreatedAt = cfg.CreatedAt
			}
			system.CreatedAt = existing.CreatedAt
		}
	}

	if err := r.app.Store.SaveExternalSystem(ctx, system); err != nil {
		return err
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s)\n", system.ID, system.SearchKey)
	return err
}
