package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	broker "github.com/goliatone/go-credential-broker"
	"github.com/goliatone/go-credential-broker/adapters/gocommand"
	"github.com/goliatone/go-credential-broker/core"
	"github.com/spf13/cobra"
)

func newCheckTenantsCmd(opts *rootOptions) *cobra.Command {
	var failOnError bool
	cmd := &cobra.Command{
		Use:   "check-tenants [tenant-id...]",
		Short: "Resolve the messaging credential of every tenant and report failures",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			tenantIDs := args
			if len(tenantIDs) == 0 {
				tenantIDs, err = a.store.ListTenantIDs(cmd.Context())
				if err != nil {
					return err
				}
			}
			reg, err := gocommand.RegisterBroker(gocommand.NewRegistryAdapter(nil), a.broker)
			if err != nil {
				return err
			}
			defer reg.Close()
			results, err := gocommand.ResolveMessagingCredentials(cmd.Context(), tenantIDs)
			if err != nil {
				return err
			}
			failed := writeTenantReport(cmd.OutOrStdout(), results)
			if failOnError && failed > 0 {
				return fmt.Errorf("%d of %d tenants could not resolve a messaging credential", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&failOnError, "fail-on-error", false, "exit non-zero when any tenant fails")
	return cmd
}

// writeTenantReport prints one row per tenant and returns the failure count.
// Tokens never appear in the output.
func writeTenantReport(out io.Writer, results []broker.MessagingCredentialResult) int {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TENANT\tSOURCE\tSENDER\tSTATUS")
	failed := 0
	for _, result := range results {
		if result.Err != nil {
			failed++
			mapped := core.MapError(result.Err)
			fmt.Fprintf(w, "%s\t-\t-\t%s: %s\n", result.TenantID, mapped.TextCode, mapped.Message)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\tok\n",
			result.TenantID,
			result.Credential.Source,
			orDash(result.Credential.SenderID),
		)
	}
	_ = w.Flush()
	return failed
}

func newTenantCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenant app registrations",
	}
	var in core.TenantCredentials
	set := &cobra.Command{
		Use:   "set",
		Short: "Create or replace a tenant app registration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.store.PutTenantCredentials(cmd.Context(), in); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tenant %s saved\n", strings.TrimSpace(in.TenantID))
			return nil
		},
	}
	flags := set.Flags()
	flags.StringVar(&in.TenantID, "tenant", "", "tenant id")
	flags.StringVar(&in.AppClientID, "client-id", "", "application client id")
	flags.StringVar(&in.AppClientSecret, "client-secret", "", "application client secret")
	flags.StringVar(&in.AppDirectoryID, "directory", "", "directory (authority) id")
	flags.StringVar(&in.CoordinatorMailbox, "coordinator", "", "coordinator mailbox")
	_ = set.MarkFlagRequired("tenant")
	cmd.AddCommand(set)
	return cmd
}

func newMessagingCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "messaging",
		Short: "Manage tenant messaging credentials",
	}
	var in core.MessagingCredential
	set := &cobra.Command{
		Use:   "set",
		Short: "Create or replace a tenant messaging credential",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.store.PutMessagingCredential(cmd.Context(), in); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "messaging credential for %s saved\n", strings.TrimSpace(in.TenantID))
			return nil
		},
	}
	flags := set.Flags()
	flags.StringVar(&in.TenantID, "tenant", "", "tenant id")
	flags.StringVar(&in.AccessToken, "token", "", "messaging access token")
	flags.StringVar(&in.SenderID, "sender", "", "sender (phone number) id")
	flags.StringVar(&in.CatalogID, "catalog", "", "catalog id")
	flags.StringVar(&in.SharedIntegrationID, "shared-integration", "", "shared integration id")
	_ = set.MarkFlagRequired("tenant")
	cmd.AddCommand(set)
	return cmd
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
