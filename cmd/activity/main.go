package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"coin-wallet-go/internal/common"
	"coin-wallet-go/internal/config"
	"coin-wallet-go/internal/models"

	"go.uber.org/zap"
)

const usage = `usage: activity <command> [flags]

commands:
  referral  -referrer <user> -referred <user>
  record    -user <user> [-at RFC3339]
  verify    -user <user> [-pss] [-edr] [-kyc]
`

// command applies one change to the activity tables and returns the user
// whose cached progression must be dropped.
type command func(ctx context.Context, services *common.Services) (string, error)

func parseCommand(args []string) (command, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("missing command")
	}

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	switch args[0] {
	case "referral":
		referrer := fs.String("referrer", "", "Referring user id")
		referred := fs.String("referred", "", "Referred user id")
		if err := fs.Parse(args[1:]); err != nil {
			return nil, err
		}
		if *referrer == "" || *referred == "" {
			return nil, fmt.Errorf("referral needs -referrer and -referred")
		}
		return func(ctx context.Context, s *common.Services) (string, error) {
			return *referrer, s.DbService.RecordReferral(ctx, *referrer, *referred)
		}, nil

	case "record":
		user := fs.String("user", "", "User id")
		at := fs.String("at", "", "Activity time in RFC3339 (default now)")
		if err := fs.Parse(args[1:]); err != nil {
			return nil, err
		}
		if *user == "" {
			return nil, fmt.Errorf("record needs -user")
		}
		when := time.Now()
		if *at != "" {
			parsed, err := time.Parse(time.RFC3339, *at)
			if err != nil {
				return nil, fmt.Errorf("invalid -at: %w", err)
			}
			when = parsed
		}
		return func(ctx context.Context, s *common.Services) (string, error) {
			return *user, s.DbService.RecordActivity(ctx, *user, when)
		}, nil

	case "verify":
		user := fs.String("user", "", "User id")
		pss := fs.Bool("pss", false, "PSS check passed")
		edr := fs.Bool("edr", false, "EDR check passed")
		kyc := fs.Bool("kyc", false, "KYC check passed")
		if err := fs.Parse(args[1:]); err != nil {
			return nil, err
		}
		if *user == "" {
			return nil, fmt.Errorf("verify needs -user")
		}
		verification := models.Verification{Pss: *pss, Edr: *edr, Kyc: *kyc}
		return func(ctx context.Context, s *common.Services) (string, error) {
			return *user, s.DbService.SetVerification(ctx, *user, verification)
		}, nil
	}
	return nil, fmt.Errorf("unknown command %q", args[0])
}

func main() {
	run, err := parseCommand(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n\n%s", err, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		common.BootstrapLogger().Fatal("Failed to load configuration", zap.Error(err))
	}

	logger, loggerCleanup := common.InitializeLogger(cfg.Log)
	defer loggerCleanup()

	ctx := context.Background()
	services, err := common.InitializeServices(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	userId, err := run(ctx, services)
	if err != nil {
		logger.Error("Command failed", zap.String("command", os.Args[1]), zap.Error(err))
		return
	}
	services.Cache.Invalidate(ctx, userId)
	logger.Info("Command applied", zap.String("command", os.Args[1]), zap.String("user_id", userId))
}
