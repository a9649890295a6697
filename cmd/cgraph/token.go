package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/codegraphhq/codegraph/internal/auth"
	"github.com/codegraphhq/codegraph/internal/config"
	"github.com/codegraphhq/codegraph/internal/errors"
)

var (
	tokenName      string
	tokenScopes    []string
	tokenAccess    []string
	tokenExpiresIn time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage bearer tokens for the tool server",
}

var tokenCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Mint a new bearer token",
	Long: `Mint a new bearer token. The raw token is printed exactly once; only a
SHA-256 hash is stored.`,
	RunE: runTokenCreate,
}

var tokenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored tokens",
	RunE:  runTokenList,
}

var tokenRevokeCmd = &cobra.Command{
	Use:   "revoke <name-or-hash-prefix>",
	Short: "Revoke a token",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenRevoke,
}

var tokenRotateCmd = &cobra.Command{
	Use:   "rotate <name-or-hash-prefix>",
	Short: "Revoke a token and mint a replacement with the same grants",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenRotate,
}

func init() {
	tokenCreateCmd.Flags().StringVar(&tokenName, "name", "", "token name (required)")
	tokenCreateCmd.Flags().StringSliceVar(&tokenScopes, "scopes", []string{"read"}, "scopes: read, write, admin")
	tokenCreateCmd.Flags().StringSliceVar(&tokenAccess, "access", []string{"private"}, "instance access: private, work, public")
	tokenCreateCmd.Flags().DurationVar(&tokenExpiresIn, "expires-in", 0, "lifetime, e.g. 720h (0 means no expiry)")
	tokenCreateCmd.MarkFlagRequired("name")

	tokenCmd.AddCommand(tokenCreateCmd, tokenListCmd, tokenRevokeCmd, tokenRotateCmd)
}

func tokenService() (*auth.TokenService, error) {
	if err := validateConfig(config.ContextToken); err != nil {
		return nil, err
	}
	store, err := auth.NewTokenStore(cfg.DataPath)
	if err != nil {
		return nil, err
	}
	return auth.NewTokenService(store), nil
}

// resolveToken finds a token by exact name first, then by hash prefix.
// An ambiguous prefix is an error rather than a guess.
func resolveToken(service *auth.TokenService, ref string) (*auth.StoredToken, error) {
	if tok, ok := service.FindTokenByName(ref); ok {
		return tok, nil
	}
	matches := service.FindTokenByHashPrefix(ref)
	switch len(matches) {
	case 0:
		return nil, errors.EntityNotFound("token", ref)
	case 1:
		return matches[0], nil
	default:
		return nil, errors.Validationf("token reference %q matches %d tokens; use more of the hash", ref, len(matches))
	}
}

func runTokenCreate(cmd *cobra.Command, args []string) error {
	service, err := tokenService()
	if err != nil {
		return err
	}

	scopes := make([]auth.Scope, len(tokenScopes))
	for i, s := range tokenScopes {
		scopes[i] = auth.Scope(s)
	}
	access := make([]auth.InstanceAccess, len(tokenAccess))
	for i, a := range tokenAccess {
		access[i] = auth.InstanceAccess(a)
	}

	params := auth.GenerateParams{Name: tokenName, Scopes: scopes, InstanceAccess: access}
	if tokenExpiresIn > 0 {
		secs := int64(tokenExpiresIn / time.Second)
		params.ExpiresInSeconds = &secs
	}

	generated, err := service.GenerateToken(params)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(generated)
	}

	fmt.Printf("✅ Token created: %s\n", generated.Metadata.Name)
	fmt.Printf("\n   %s\n\n", generated.RawToken)
	fmt.Printf("⚠️  Store this token now; it is shown only once.\n")
	fmt.Printf("   Hash: %s\n", generated.TokenHash)
	fmt.Printf("   Scopes: %v, access: %v\n", generated.Metadata.Scopes, generated.Metadata.InstanceAccess)
	if generated.Metadata.ExpiresAt != nil {
		fmt.Printf("   Expires: %s\n", generated.Metadata.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

func runTokenList(cmd *cobra.Command, args []string) error {
	service, err := tokenService()
	if err != nil {
		return err
	}

	tokens := service.ListTokens()
	if jsonOut {
		return printJSON(tokens)
	}

	if len(tokens) == 0 {
		fmt.Printf("No tokens. Run 'cgraph token create --name <name>' to mint one.\n")
		return nil
	}

	fmt.Printf("🔑 Tokens (%d):\n", len(tokens))
	for _, tok := range tokens {
		state := "active"
		switch {
		case tok.Revoked:
			state = "revoked"
		case tok.Expired(time.Now()):
			state = "expired"
		}
		fmt.Printf("  %s  %s (%s)\n", tok.TokenHash[:12], tok.Metadata.Name, state)
		fmt.Printf("      scopes %v, access %v\n", tok.Metadata.Scopes, tok.Metadata.InstanceAccess)
		fmt.Printf("      created %s", relativeTime(tok.Metadata.CreatedAt))
		if tok.Metadata.ExpiresAt != nil {
			fmt.Printf(", expires %s", tok.Metadata.ExpiresAt.Format("2006-01-02"))
		}
		if tok.Metadata.LastUsedAt != nil {
			fmt.Printf(", last used %s (%d uses)", relativeTime(*tok.Metadata.LastUsedAt), tok.Metadata.UseCount)
		}
		fmt.Println()
	}
	return nil
}

func runTokenRevoke(cmd *cobra.Command, args []string) error {
	service, err := tokenService()
	if err != nil {
		return err
	}

	tok, err := resolveToken(service, args[0])
	if err != nil {
		return err
	}
	if tok.Revoked {
		fmt.Printf("✓ Token %s is already revoked\n", tok.Metadata.Name)
		return nil
	}

	if _, err := service.RevokeToken(tok.TokenHash); err != nil {
		return err
	}

	if jsonOut {
		return printJSON(map[string]any{"name": tok.Metadata.Name, "token_hash": tok.TokenHash, "revoked": true})
	}
	fmt.Printf("✅ Revoked %s (%s)\n", tok.Metadata.Name, tok.TokenHash[:12])
	return nil
}

func runTokenRotate(cmd *cobra.Command, args []string) error {
	service, err := tokenService()
	if err != nil {
		return err
	}

	tok, err := resolveToken(service, args[0])
	if err != nil {
		return err
	}

	generated, err := service.RotateToken(tok.TokenHash)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(generated)
	}

	fmt.Printf("✅ Rotated %s; the old token is revoked\n", generated.Metadata.Name)
	fmt.Printf("\n   %s\n\n", generated.RawToken)
	fmt.Printf("⚠️  Store this token now; it is shown only once.\n")
	return nil
}
