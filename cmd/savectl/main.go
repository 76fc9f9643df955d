// Command savectl is a terminal front-end for the SaveMate challenge API:
// browse the catalog, join and abandon challenges, record deposits and
// withdrawals, and inspect progress and aggregate stats.
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"github.com/savemate/ledgersync/internal/apiclient"
	"github.com/savemate/ledgersync/internal/config"
	"github.com/savemate/ledgersync/internal/domain/challenge"
	"github.com/savemate/ledgersync/internal/domain/participation"
	"github.com/savemate/ledgersync/internal/ledger"
	"github.com/savemate/ledgersync/internal/progress"
	"github.com/savemate/ledgersync/internal/session"
	"github.com/savemate/ledgersync/internal/stats"
	"github.com/savemate/ledgersync/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type env struct {
	cfg     *config.Config
	log     *logger.Logger
	client  *apiclient.Client
	session *session.Session
	fetcher *stats.Fetcher
}

func buildEnv(configFile string) (*env, error) {
	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = config.LoadFile(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if cfg.UserID == "" {
		return nil, fmt.Errorf("user id is required (SAVEMATE_USER_ID)")
	}

	level := logger.ParseLevel(cfg.LogLevel)
	log := logger.New("savectl", os.Stderr, level)
	client := apiclient.New(apiclient.Config{
		BaseURL:    cfg.API.BaseURL,
		Token:      cfg.API.Token,
		Timeout:    cfg.API.Timeout,
		MaxRetries: cfg.API.MaxRetries,
		RateLimit:  cfg.API.RateLimit,
		Burst:      cfg.API.Burst,
		Log:        logger.New("apiclient", os.Stderr, level),
	})

	var snapshots ledger.SnapshotStore
	if cfg.Snapshot.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.Snapshot.RedisAddr,
			DB:   cfg.Snapshot.RedisDB,
		})
		snapshots = ledger.NewRedisSnapshotStore(rdb, cfg.Snapshot.KeyPrefix, cfg.Snapshot.TTL)
	}

	sess := session.New(cfg.UserID, client, session.Options{
		Snapshots: snapshots,
		Log:       log.With("component", "session"),
	})
	if snapshots != nil {
		if err := sess.RestoreSnapshot(context.Background()); err != nil {
			log.Debugf("no usable snapshot: %v", err)
		}
	}

	return &env{
		cfg:     cfg,
		log:     log,
		client:  client,
		session: sess,
		fetcher: stats.NewFetcher(client, log.With("component", "stats")),
	}, nil
}

// persist saves a snapshot when persistence is configured. Best effort.
func (e *env) persist(ctx context.Context) {
	if err := e.session.Snapshot(ctx); err != nil && err != session.ErrNoSnapshotStore {
		e.log.Warnf("snapshot save failed: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string
	var e *env

	root := &cobra.Command{
		Use:           "savectl",
		Short:         "SaveMate savings-challenge client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			e, err = buildEnv(configFile)
			return err
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "optional YAML config file")

	root.AddCommand(
		newChallengesCmd(&e),
		newJoinCmd(&e),
		newDepositCmd(&e),
		newWithdrawCmd(&e),
		newAbandonCmd(&e),
		newLeaveCmd(&e),
		newStatusCmd(&e),
		newTransactionsCmd(&e),
		newGoalCmd(&e),
		newStatsCmd(&e),
	)
	return root
}

func newChallengesCmd(e **env) *cobra.Command {
	var search, ctype, status string
	var official bool
	var page, limit int
	cmd := &cobra.Command{
		Use:   "challenges",
		Short: "Browse the challenge catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := apiclient.Filter{
				Search: search,
				Type:   challenge.Type(strings.ToUpper(ctype)),
				Status: challenge.Status(strings.ToUpper(status)),
				Page:   page,
				Limit:  limit,
			}
			if cmd.Flags().Changed("official") {
				f.IsOfficial = &official
			}
			items, info, err := (*e).session.BrowseChallenges(cmd.Context(), f)
			if err != nil {
				return err
			}
			for _, ch := range items {
				fmt.Printf("%-12s %-30s %-8s %-9s %6.1f%%  %d participants\n",
					ch.ID, truncate(ch.Title, 30), ch.Type, ch.EffectiveStatus(time.Now()),
					progress.Collective(ch), ch.ParticipantCount)
			}
			fmt.Printf("page %d, %d total\n", info.Page, info.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "search term")
	cmd.Flags().StringVar(&ctype, "type", "", "challenge type (daily|weekly|monthly|custom)")
	cmd.Flags().StringVar(&status, "status", "", "challenge status")
	cmd.Flags().BoolVar(&official, "official", false, "only official challenges")
	cmd.Flags().IntVar(&page, "page", 0, "page number")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size")
	return cmd
}

func newJoinCmd(e **env) *cobra.Command {
	var target string
	var mode, motivation string
	cmd := &cobra.Command{
		Use:   "join <challenge-id>",
		Short: "Join a challenge with a personal target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(target)
			if err != nil {
				return err
			}
			p, err := (*e).session.Join(cmd.Context(), args[0], session.JoinOptions{
				TargetAmount: amount,
				Mode:         participation.Mode(strings.ToUpper(mode)),
				Motivation:   motivation,
			})
			if err != nil {
				return err
			}
			(*e).persist(cmd.Context())
			fmt.Printf("joined %s: target %s, status %s\n", args[0], formatAmount(p.TargetAmount), p.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "personal target amount, e.g. 500.00")
	cmd.Flags().StringVar(&mode, "mode", "free", "participation mode (free|forced)")
	cmd.Flags().StringVar(&motivation, "motivation", "", "optional motivation text")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func transactionRun(e **env, txType participation.TransactionType) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		amountFlag, _ := cmd.Flags().GetString("amount")
		description, _ := cmd.Flags().GetString("description")
		amount, err := parseAmount(amountFlag)
		if err != nil {
			return err
		}
		(*e).session.SetActiveChallenge(args[0])
		res, err := (*e).session.AddTransaction(cmd.Context(), args[0], session.TransactionInput{
			Amount:      amount,
			Type:        txType,
			Description: description,
		})
		if err != nil {
			return err
		}
		(*e).persist(cmd.Context())
		fmt.Printf("recorded %s of %s, balance %s\n",
			strings.ToLower(string(txType)), formatAmount(amount), formatAmount(res.NewBalance))
		if res.Mismatch {
			fmt.Printf("note: server balance differed from the predicted %s (concurrent activity elsewhere)\n",
				formatAmount(res.PredictedBalance))
		}
		if p, ok := (*e).session.Participation(args[0]); ok {
			fmt.Printf("progress: %.1f%%, remaining %s\n", progress.Percentage(p), formatAmount(progress.Remaining(p)))
		}
		return nil
	}
}

func newDepositCmd(e **env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deposit <challenge-id>",
		Short: "Record a deposit",
		Args:  cobra.ExactArgs(1),
		RunE:  transactionRun(e, participation.TypeDeposit),
	}
	cmd.Flags().String("amount", "", "amount, e.g. 25.50")
	cmd.Flags().String("description", "", "optional description")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newWithdrawCmd(e **env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdraw <challenge-id>",
		Short: "Record a withdrawal",
		Args:  cobra.ExactArgs(1),
		RunE:  transactionRun(e, participation.TypeWithdrawal),
	}
	cmd.Flags().String("amount", "", "amount, e.g. 25.50")
	cmd.Flags().String("description", "", "optional description")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newAbandonCmd(e **env) *cobra.Command {
	var reason, category, comment string
	cmd := &cobra.Command{
		Use:   "abandon <challenge-id>",
		Short: "Permanently abandon a participation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := (*e).session.Abandon(cmd.Context(), args[0], reason, category, comment)
			if err != nil {
				return err
			}
			(*e).persist(cmd.Context())
			fmt.Printf("abandoned %s at %s\n", args[0], p.AbandonedAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "abandonment reason")
	cmd.Flags().StringVar(&category, "category", "", "abandonment category")
	cmd.Flags().StringVar(&comment, "comment", "", "optional comment")
	_ = cmd.MarkFlagRequired("reason")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func newLeaveCmd(e **env) *cobra.Command {
	return &cobra.Command{
		Use:   "leave <challenge-id>",
		Short: "Leave a challenge before any financial commitment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := (*e).session.Leave(cmd.Context(), args[0]); err != nil {
				return err
			}
			(*e).persist(cmd.Context())
			fmt.Printf("left %s\n", args[0])
			return nil
		},
	}
}

func newStatusCmd(e **env) *cobra.Command {
	return &cobra.Command{
		Use:   "status [challenge-id]",
		Short: "Show participation status and progress",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess := (*e).session
			if len(args) == 1 {
				if err := sess.RefreshChallenge(cmd.Context(), args[0]); err != nil {
					(*e).log.Warnf("challenge refresh failed: %v", err)
				}
				p, ok := sess.Participation(args[0])
				if !ok {
					return fmt.Errorf("not participating in %s", args[0])
				}
				printParticipation(sess, p)
				return nil
			}
			parts, err := sess.MyChallenges(cmd.Context(), "")
			if err != nil {
				return err
			}
			for _, p := range parts {
				printParticipation(sess, p)
			}
			(*e).persist(cmd.Context())
			return nil
		},
	}
}

func printParticipation(sess *session.Session, p participation.Participation) {
	fmt.Printf("%-12s %-9s balance %s / %s (%.1f%%, remaining %s)\n",
		p.ChallengeID, p.Status,
		formatAmount(p.CurrentAmount), formatAmount(p.TargetAmount),
		progress.Percentage(p), formatAmount(progress.Remaining(p)))
	if ch, ok := sess.Cache().Challenge(p.ChallengeID); ok {
		fmt.Printf("             collective: %.1f%%, %d participants\n",
			progress.Collective(ch), ch.ParticipantCount)
	}
}

func newTransactionsCmd(e **env) *cobra.Command {
	return &cobra.Command{
		Use:   "transactions <challenge-id>",
		Short: "Show the transaction history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			txs, err := (*e).session.RefreshTransactions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, tx := range txs {
				fmt.Printf("%s  %-10s %10s  balance %10s  %s\n",
					tx.Date.Format("2006-01-02"), tx.Type,
					formatAmount(tx.Amount), formatAmount(tx.BalanceAfter), tx.Description)
			}
			(*e).persist(cmd.Context())
			return nil
		},
	}
}

func newGoalCmd(e **env) *cobra.Command {
	var target, currency, income, mode, motivation, notes string
	var variable bool
	cmd := &cobra.Command{
		Use:   "goal <challenge-id>",
		Short: "Show or configure the goal for a challenge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess := (*e).session
			if target == "" {
				g, err := sess.Goal(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Printf("target %s %s, mode %s\n", formatAmount(g.TargetAmount), g.Currency, g.Mode)
				if g.Motivation != "" {
					fmt.Printf("motivation: %s\n", g.Motivation)
				}
				return nil
			}
			amount, err := parseAmount(target)
			if err != nil {
				return err
			}
			var monthlyIncome int64
			if income != "" {
				if monthlyIncome, err = parseAmount(income); err != nil {
					return err
				}
			}
			g, err := sess.ConfigureGoal(cmd.Context(), args[0], apiclient.GoalRequest{
				TargetAmount:     amount,
				Mode:             participation.Mode(strings.ToUpper(mode)),
				Currency:         currency,
				MonthlyIncome:    monthlyIncome,
				IsVariableIncome: variable,
				Motivation:       motivation,
				AdditionalNotes:  notes,
			})
			if err != nil {
				return err
			}
			(*e).persist(cmd.Context())
			fmt.Printf("goal set: %s %s\n", formatAmount(g.TargetAmount), g.Currency)
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "target amount; omit to show the current goal")
	cmd.Flags().StringVar(&currency, "currency", "EUR", "currency code")
	cmd.Flags().StringVar(&income, "income", "", "monthly income")
	cmd.Flags().BoolVar(&variable, "variable-income", false, "income varies month to month")
	cmd.Flags().StringVar(&mode, "mode", "free", "participation mode")
	cmd.Flags().StringVar(&motivation, "motivation", "", "motivation text")
	cmd.Flags().StringVar(&notes, "notes", "", "additional notes")
	return cmd
}

func newStatsCmd(e **env) *cobra.Command {
	var user bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if user {
				st, err := (*e).fetcher.RefreshUser(cmd.Context(), (*e).cfg.UserID)
				if err != nil {
					return err
				}
				fmt.Printf("joined %d, completed %d, abandoned %d\n", st.JoinedCount, st.CompletedCount, st.AbandonedCount)
				fmt.Printf("total saved %s, average progress %.1f%%\n", formatAmount(st.TotalSaved), st.AverageProgress)
				return nil
			}
			st, err := (*e).fetcher.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("%d challenges (%d active), %d participants, %s saved\n",
				st.TotalChallenges, st.ActiveChallenges, st.TotalParticipants, formatAmount(st.TotalSaved))
			for _, entry := range st.Leaderboard {
				fmt.Printf("  #%-3d %-20s %s\n", entry.Rank, entry.Username, formatAmount(entry.TotalSaved))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&user, "me", false, "show my stats instead of global ones")
	return cmd
}

// parseAmount converts a decimal amount string like "25.50" to minor units.
func parseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("amount is required")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return int64(math.Round(v * 100)), nil
}

func formatAmount(minor int64) string {
	return fmt.Sprintf("%.2f", float64(minor)/100)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
