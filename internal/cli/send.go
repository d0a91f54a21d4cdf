package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"extsys/internal/auth"
	"extsys/internal/connectivity"
	"extsys/internal/protocols"
)

func newCheckCommand(r *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "check <id|search-key>",
		Short: "Test the connectivity of an external system",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := r.context(cmd)
			defer cancel()

			result := connectivity.Check(ctx, r.app.Provider, args[0], r.app.Logger)
			fmt.Fprintln(cmd.OutOrStdout(), result.Message)
			if !result.Success {
				return fmt.Errorf("connectivity check of %s failed", args[0])
			}
			return nil
		},
	}
}

type sendFlags struct {
	operation   string
	path        string
	data        string
	query       map[string]string
	contentType string
}

// sendOutput is the printed form of a Response
type sendOutput struct {
	Type       protocols.ResponseType `json:"type"`
	StatusCode int                    `json:"status_code"`
	Data       interface{}            `json:"data,omitempty"`
	Error      interface{}            `json:"error,omitempty"`
}

func newSendCommand(r *runtime) *cobra.Command {
	var flags sendFlags
	cmd := &cobra.Command{
		Use:   "send <id|search-key>",
		Short: "Send one request to an external system and print the response",
		Example: `  extsys send countries --data '{"name":"Spain"}'
  extsys send countries --op READ --query "_where=isoCountryCode='ES'"
  extsys send countries --op DELETE --path 42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.send(cmd, args[0], flags)
		},
	}
	cmd.Flags().StringVar(&flags.operation, "op", "", "CREATE, READ, UPDATE or DELETE (default: derived from the configuration)")
	cmd.Flags().StringVar(&flags.path, "path", "", "path appended to the base address")
	cmd.Flags().StringVar(&flags.data, "data", "", "request payload")
	cmd.Flags().StringToStringVar(&flags.query, "query", nil, "query parameters of READ requests (k=v)")
	cmd.Flags().StringVar(&flags.contentType, "content-type", "", "Content-Type of the payload")
	return cmd
}

func (r *runtime) send(cmd *cobra.Command, ref string, flags sendFlags) error {
	ctx, cancel := r.context(cmd)
	defer cancel()

	system, ok, err := r.app.Provider.GetBySearchKeyOrID(ctx, ref)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s", connectivity.MessageMissing)
	}
	defer r.app.Provider.Release(system)

	req := protocols.SendRequest{
		Operation: protocols.Operation(strings.ToUpper(flags.operation)),
		Path:      flags.path,
		Config:    map[string]interface{}{},
	}
	if flags.data != "" {
		req.Payload = protocols.StringPayload(flags.data)
	}
	if len(flags.query) > 0 {
		req.Config[protocols.ConfigQueryParameters] = flags.query
	}
	if flags.contentType != "" {
		req.Config[protocols.ConfigContentType] = flags.contentType
	}

	resp, err := system.Send(ctx, req).Await(ctx)
	if err != nil {
		return err
	}
	if err := printJSON(cmd.OutOrStdout(), sendOutput{
		Type:       resp.Type,
		StatusCode: resp.StatusCode,
		Data:       resp.Data,
		Error:      resp.Error,
	}); err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("request failed: %s", resp.ErrorMessage())
	}
	return nil
}

func newTokenCommand(r *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "token <id|search-key>",
		Short: "Acquire an OAuth2 token for an external system and print its lifetime",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := r.context(cmd)
			defer cancel()

			system, ok, err := r.app.Provider.GetBySearchKeyOrID(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s", connectivity.MessageMissing)
			}
			defer r.app.Provider.Release(system)

			withStrategy, ok := system.(interface{ Strategy() auth.Strategy })
			if !ok {
				return fmt.Errorf("external system %s does not use HTTP authorization", args[0])
			}
			strategy, isHeader := withStrategy.Strategy().(auth.HeaderStrategy)
			data, hasData := withStrategy.Strategy().(auth.AuthorizationDataProvider)
			if !isHeader || !hasData {
				return fmt.Errorf("external system %s does not use OAuth2", args[0])
			}

			if _, err := strategy.Headers(ctx); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data.AuthorizationData())
		},
	}
}
