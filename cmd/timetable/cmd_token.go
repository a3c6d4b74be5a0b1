package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/service"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API bearer token",
	Long:  "Issue a signed JWT for the timetable API using the configured JWT secret and issuer.",
	RunE:  runToken,
}

var (
	tokenSubject string
	tokenRole    string
	tokenTTL     time.Duration
)

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "Token subject (required)")
	tokenCmd.Flags().StringVar(&tokenRole, "role", "SCHEDULER", "Role: ADMIN, SCHEDULER or VIEWER")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Lifetime, defaults to JWT_EXPIRATION")
	tokenCmd.MarkFlagRequired("subject") //nolint:errcheck
}

func runToken(cmd *cobra.Command, args []string) error {
	issued, err := service.NewTokenService(cfg.JWT).Issue(dto.IssueTokenRequest{
		Subject: tokenSubject,
		Role:    models.UserRole(strings.ToUpper(tokenRole)),
		TTL:     tokenTTL,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), issued.Token)
	fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", issued.ExpiresAt.Format(time.RFC3339))
	return nil
}
