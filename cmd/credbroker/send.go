package main

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-credential-broker/adapters/gocommand"
	brokercommand "github.com/goliatone/go-credential-broker/command"
	"github.com/goliatone/go-credential-broker/core"
	"github.com/spf13/cobra"
)

func newSendMessageCmd(opts *rootOptions) *cobra.Command {
	var (
		msg      brokercommand.SendMessageMessage
		text     string
		template string
		locale   string
	)
	cmd := &cobra.Command{
		Use:   "send-message",
		Short: "Send a text or template message with a tenant's messaging credential",
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload, err := buildPayload(text, template, locale)
			if err != nil {
				return err
			}
			msg.Payload = payload

			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			reg, err := gocommand.RegisterBroker(gocommand.NewRegistryAdapter(nil), a.broker)
			if err != nil {
				return err
			}
			defer reg.Close()

			out, err := gocommand.SendMessage(cmd.Context(), msg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %s to %s\n", out.ProviderMessageID, out.Recipient)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&msg.TenantID, "tenant", "", "tenant id")
	flags.StringVar(&msg.Recipient, "to", "", "recipient phone number")
	flags.StringVar(&text, "text", "", "free text body")
	flags.StringVar(&template, "template", "", "approved template name")
	flags.StringVar(&locale, "locale", "en", "template locale")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func buildPayload(text string, template string, locale string) (core.MessagePayload, error) {
	text = strings.TrimSpace(text)
	template = strings.TrimSpace(template)
	switch {
	case text != "" && template != "":
		return core.MessagePayload{}, fmt.Errorf("use either --text or --template")
	case template != "":
		return core.MessagePayload{Template: &core.MessageTemplate{Name: template, Locale: strings.TrimSpace(locale)}}, nil
	case text != "":
		return core.MessagePayload{Text: text}, nil
	default:
		return core.MessagePayload{}, fmt.Errorf("one of --text or --template is required")
	}
}
