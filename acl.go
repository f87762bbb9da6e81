package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/globus-go/internal/transfer"
)

func newACLCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "acl",
		Short: "Manage access rules on shared endpoints",
	}

	cmd.AddCommand(newACLListCmd())
	cmd.AddCommand(newACLAddCmd())
	cmd.AddCommand(newACLRmCmd())

	return cmd
}

func newACLListCmd() *cobra.Command {
	var manager bool

	cmd := &cobra.Command{
		Use:   "list ENDPOINT",
		Short: "List access rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			ctx := cmd.Context()

			ep, err := cc.endpointID(args[0])
			if err != nil {
				return err
			}

			client, err := cc.transferClient(ctx)
			if err != nil {
				return err
			}

			list := client.ACLList
			if manager {
				list = client.ManagerACLList
			}

			rules, err := list(ctx, ep)
			if err != nil {
				return err
			}

			if cc.Flags.JSON {
				if rules == nil {
					rules = []transfer.ACLRule{}
				}

				return cc.PrintJSON(rules)
			}

			rows := make([][]string, 0, len(rules))
			for _, r := range rules {
				rows = append(rows, []string{r.ID, r.Permissions, r.PrincipalType, r.Principal, r.Path})
			}

			printTable(cc.Out, []string{"RULE ID", "PERMS", "TYPE", "PRINCIPAL", "PATH"}, rows)

			return nil
		},
	}

	cmd.Flags().BoolVar(&manager, "manager", false, "use the endpoint-manager API (activity or access managers)")

	return cmd
}

type aclAddFlags struct {
	identity      string
	group         string
	authenticated bool
	anonymous     bool
	perms         string
}

func newACLAddCmd() *cobra.Command {
	var f aclAddFlags

	cmd := &cobra.Command{
		Use:   "add ENDPOINT:PATH",
		Short: "Grant access to a path",
		Long: `Grant access to a directory on a shared endpoint. Give exactly one of
--identity (UUID or username), --group, --all-authenticated or --anonymous.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			ctx := cmd.Context()

			ep, err := cc.endpointPath(args[0])
			if err != nil {
				return err
			}

			rule, err := f.rule(ep.Path)
			if err != nil {
				return err
			}

			if rule.PrincipalType == transfer.PrincipalIdentity {
				ic, err := cc.identityClient(ctx)
				if err != nil {
					return err
				}

				if rule.Principal, err = ic.ResolvePrincipal(ctx, rule.Principal); err != nil {
					return err
				}
			}

			client, err := cc.transferClient(ctx)
			if err != nil {
				return err
			}

			id, err := client.AddACLRule(ctx, ep.Endpoint, rule)
			if errors.Is(err, transfer.ErrExists) {
				cc.Statusf("An identical rule already exists.\n")
				return nil
			}

			if err != nil {
				return err
			}

			if cc.Flags.JSON {
				return cc.PrintJSON(map[string]string{"access_id": id})
			}

			fmt.Fprintf(cc.Out, "Rule ID: %s\n", id)

			return nil
		},
	}

	cmd.Flags().StringVar(&f.identity, "identity", "", "identity UUID or username")
	cmd.Flags().StringVar(&f.group, "group", "", "group UUID")
	cmd.Flags().BoolVar(&f.authenticated, "all-authenticated", false, "any logged-in user")
	cmd.Flags().BoolVar(&f.anonymous, "anonymous", false, "anyone, including anonymous HTTPS access")
	cmd.Flags().StringVar(&f.perms, "perms", "r", "permissions: r or rw")

	return cmd
}

// rule builds the access rule the flags describe. Directory rules need a
// trailing slash.
func (f aclAddFlags) rule(p string) (transfer.ACLRule, error) {
	if f.perms != "r" && f.perms != "rw" {
		return transfer.ACLRule{}, fmt.Errorf("--perms must be r or rw, got %q", f.perms)
	}

	r := transfer.ACLRule{Path: p, Permissions: f.perms}
	if r.Path == "" || r.Path[len(r.Path)-1] != '/' {
		r.Path += "/"
	}

	n := 0

	if f.identity != "" {
		n++
		r.PrincipalType, r.Principal = transfer.PrincipalIdentity, f.identity
	}

	if f.group != "" {
		group, err := transfer.CanonicalID(f.group)
		if err != nil {
			return transfer.ACLRule{}, fmt.Errorf("--group: %w", err)
		}

		n++
		r.PrincipalType, r.Principal = transfer.PrincipalGroup, group
	}

	if f.authenticated {
		n++
		r.PrincipalType, r.Principal = transfer.PrincipalAuthenticated, ""
	}

	if f.anonymous {
		n++
		r.PrincipalType, r.Principal = transfer.PrincipalAnonymous, ""
	}

	if n != 1 {
		return transfer.ACLRule{}, errors.New("give exactly one of --identity, --group, --all-authenticated, --anonymous")
	}

	return r, nil
}

func newACLRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm ENDPOINT RULE_ID",
		Short: "Remove an access rule",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			ctx := cmd.Context()

			ep, err := cc.endpointID(args[0])
			if err != nil {
				return err
			}

			client, err := cc.transferClient(ctx)
			if err != nil {
				return err
			}

			if err := client.DeleteACLRule(ctx, ep, args[1]); err != nil {
				return err
			}

			cc.Statusf("Removed rule %s\n", args[1])

			return nil
		},
	}
}
